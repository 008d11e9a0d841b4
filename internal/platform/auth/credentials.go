package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("staff account already exists")
	ErrUserNotFound       = errors.New("staff account not found")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidUsername    = errors.New("username must be 3-64 characters without spaces")
)

const minPasswordLen = 8

// CredentialStore holds staff logins. Each username owns the hospital profile
// of the same name.
type CredentialStore interface {
	// Verify returns ErrInvalidCredentials for an unknown user or wrong password.
	Verify(ctx context.Context, username, password string) error
	Create(ctx context.Context, username, password string) error
	SetPassword(ctx context.Context, username, password string) error
}

// NormalizeUsername trims and lower-cases a login name.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < 3 || n > 64 || strings.ContainsAny(username, " \t\r\n") {
		return ErrInvalidUsername
	}
	return nil
}

func hashPassword(password string, cost int) ([]byte, error) {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func checkPassword(hash []byte, password string) error {
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// dummyHash is compared against when the user does not exist so that unknown
// usernames take as long as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("carebook-dummy-password"), bcrypt.MinCost)

// InMemoryCredentialStore keeps bcrypt hashes in a map.
type InMemoryCredentialStore struct {
	mu     sync.RWMutex
	hashes map[string][]byte
	cost   int
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{hashes: make(map[string][]byte), cost: bcrypt.DefaultCost}
}

// WithCost sets the bcrypt cost for new hashes; tests use bcrypt.MinCost.
func (s *InMemoryCredentialStore) WithCost(cost int) *InMemoryCredentialStore {
	s.cost = cost
	return s
}

func (s *InMemoryCredentialStore) Verify(_ context.Context, username, password string) error {
	s.mu.RLock()
	hash, ok := s.hashes[NormalizeUsername(username)]
	s.mu.RUnlock()
	if !ok {
		_ = checkPassword(dummyHash, password)
		return ErrInvalidCredentials
	}
	return checkPassword(hash, password)
}

func (s *InMemoryCredentialStore) Create(_ context.Context, username, password string) error {
	username = NormalizeUsername(username)
	if err := validateUsername(username); err != nil {
		return err
	}
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hashes[username]; exists {
		return ErrUserExists
	}
	s.hashes[username] = hash
	return nil
}

func (s *InMemoryCredentialStore) SetPassword(_ context.Context, username, password string) error {
	username = NormalizeUsername(username)
	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hashes[username]; !exists {
		return ErrUserNotFound
	}
	s.hashes[username] = hash
	return nil
}
