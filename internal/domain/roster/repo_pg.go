package roster

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/platform/db"
)

// -- Hospital Repository --

type hospitalRepoPG struct {
	pool *pgxpool.Pool
}

func NewHospitalRepo(pool *pgxpool.Pool) HospitalRepository {
	return &hospitalRepoPG{pool: pool}
}

func (r *hospitalRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *hospitalRepoPG) Upsert(ctx context.Context, h *Hospital) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospital (username, name, location)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET
			name = EXCLUDED.name, location = EXCLUDED.location, updated_at = NOW()
		RETURNING created_at, updated_at`,
		h.Username, h.Name, h.Location,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
}

func (r *hospitalRepoPG) EnsureExists(ctx context.Context, username string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospital (username, name, location)
		VALUES ($1, $1, $2)
		ON CONFLICT (username) DO NOTHING`,
		username, NotSetLocation,
	)
	return err
}

func (r *hospitalRepoPG) GetByUsername(ctx context.Context, username string) (*Hospital, error) {
	var h Hospital
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT username, name, location, created_at, updated_at FROM hospital WHERE username = $1`,
		username,
	).Scan(&h.Username, &h.Name, &h.Location, &h.CreatedAt, &h.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrHospitalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *hospitalRepoPG) List(ctx context.Context) ([]*Hospital, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT username, name, location, created_at, updated_at FROM hospital ORDER BY name, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Hospital
	for rows.Next() {
		var h Hospital
		if err := rows.Scan(&h.Username, &h.Name, &h.Location, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorColumns = `d.id, d.hospital_username, COALESCE(h.name, ''), d.name, d.specialization,
	d.education, d.timings, d.weekly_holidays,
	to_char(d.emergency_leave_date, 'YYYY-MM-DD'), d.emergency_leave_session,
	d.daily_cap, d.created_at, d.updated_at`

const doctorFrom = ` FROM doctor d LEFT JOIN hospital h ON h.username = d.hospital_username`

func leaveArgs(d *Doctor) (*string, string) {
	if d.EmergencyLeave == nil {
		return nil, ""
	}
	date := d.EmergencyLeave.Date
	return &date, d.EmergencyLeave.Session
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	leaveDate, leaveSession := leaveArgs(d)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (
			hospital_username, name, specialization, education, timings,
			weekly_holidays, emergency_leave_date, emergency_leave_session, daily_cap
		) VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9)
		RETURNING id, created_at, updated_at`,
		d.HospitalUsername, d.Name, d.Specialization, d.Education, d.Timings,
		d.WeeklyHolidays, leaveDate, leaveSession, d.DailyCap,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	leaveDate, leaveSession := leaveArgs(d)
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET
			name = $2, specialization = $3, education = $4, timings = $5,
			weekly_holidays = $6, emergency_leave_date = $7::date,
			emergency_leave_session = $8, daily_cap = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Name, d.Specialization, d.Education, d.Timings,
		d.WeeklyHolidays, leaveDate, leaveSession, d.DailyCap,
	).Scan(&d.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrDoctorNotFound
	}
	return err
}

func (r *doctorRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorColumns+doctorFrom+` WHERE d.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrDoctorNotFound
	}
	return d, err
}

func (r *doctorRepoPG) ListByHospital(ctx context.Context, username string, limit, offset int) ([]*Doctor, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor WHERE hospital_username = $1`, username).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorColumns+doctorFrom+` WHERE d.hospital_username = $1 ORDER BY d.id LIMIT $2 OFFSET $3`,
		username, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	doctors, err := collectDoctors(rows)
	return doctors, total, err
}

func (r *doctorRepoPG) ListByHospitals(ctx context.Context, usernames []string) ([]*Doctor, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorColumns+doctorFrom+` WHERE d.hospital_username = ANY($1) ORDER BY d.id`,
		usernames)
	if err != nil {
		return nil, err
	}
	return collectDoctors(rows)
}

func (r *doctorRepoPG) ClearLeaveBefore(ctx context.Context, day string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor SET emergency_leave_date = NULL, emergency_leave_session = '', updated_at = NOW()
		WHERE emergency_leave_date < $1::date`, day)
	if err != nil {
		return 0, fmt.Errorf("clear emergency leave: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var (
		d            Doctor
		leaveDate    *string
		leaveSession string
	)
	err := row.Scan(
		&d.ID, &d.HospitalUsername, &d.HospitalName, &d.Name, &d.Specialization,
		&d.Education, &d.Timings, &d.WeeklyHolidays,
		&leaveDate, &leaveSession,
		&d.DailyCap, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if leaveDate != nil {
		d.EmergencyLeave = &EmergencyLeave{Date: *leaveDate, Session: leaveSession}
	}
	if d.WeeklyHolidays == nil {
		d.WeeklyHolidays = []string{}
	}
	return &d, nil
}

func collectDoctors(rows pgx.Rows) ([]*Doctor, error) {
	defer rows.Close()
	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
