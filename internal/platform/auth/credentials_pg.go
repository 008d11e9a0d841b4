package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/carebook/carebook/internal/platform/db"
)

// PGCredentialStore keeps staff accounts in the staff_account table.
type PGCredentialStore struct {
	pool *pgxpool.Pool
	cost int
}

func NewPGCredentialStore(pool *pgxpool.Pool) *PGCredentialStore {
	return &PGCredentialStore{pool: pool, cost: bcrypt.DefaultCost}
}

func (s *PGCredentialStore) Verify(ctx context.Context, username, password string) error {
	var hash string
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT password_hash FROM staff_account WHERE username = $1`,
		NormalizeUsername(username)).Scan(&hash)
	if db.IsNoRows(err) {
		_ = checkPassword(dummyHash, password)
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("load staff account: %w", err)
	}
	return checkPassword([]byte(hash), password)
}

func (s *PGCredentialStore) Create(ctx context.Context, username, password string) error {
	username = NormalizeUsername(username)
	if err := validateUsername(username); err != nil {
		return err
	}
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return err
	}

	_, err = db.Conn(ctx, s.pool).Exec(ctx,
		`INSERT INTO staff_account (username, password_hash) VALUES ($1, $2)`,
		username, string(hash))
	if db.IsUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert staff account: %w", err)
	}
	return nil
}

func (s *PGCredentialStore) SetPassword(ctx context.Context, username, password string) error {
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return err
	}

	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE staff_account SET password_hash = $2, updated_at = now() WHERE username = $1`,
		NormalizeUsername(username), string(hash))
	if err != nil {
		return fmt.Errorf("update staff password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
