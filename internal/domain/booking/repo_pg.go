package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/domain/roster"
	"github.com/carebook/carebook/internal/platform/db"
)

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) Repository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appointmentCols = `id, doctor_id, doctor_name, hospital_name,
	to_char(appointment_date, 'YYYY-MM-DD'), day_seq, patient_name, patient_phone,
	phone_key, status, created_at, updated_at`

// lockKeys maps (doctor, date) onto the two int4 keys of
// pg_advisory_xact_lock. Doctor ids beyond int32 wrap, which can only make
// two doctors share a lock.
func lockKeys(doctorID int64, date string) (int32, int32, error) {
	day, err := time.Parse(roster.DateLayout, date)
	if err != nil {
		return 0, 0, fmt.Errorf("lock key: %w", err)
	}
	return int32(doctorID), int32(day.Unix() / 86400), nil
}

func (r *appointmentRepoPG) LockDay(ctx context.Context, doctorID int64, date string) error {
	if db.TxFromContext(ctx) == nil {
		return fmt.Errorf("lock day: no transaction in context")
	}
	k1, k2, err := lockKeys(doctorID, date)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, $2::int4)`, k1, k2)
	return err
}

func (r *appointmentRepoPG) CountForDay(ctx context.Context, doctorID int64, date string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE doctor_id = $1 AND appointment_date = $2::date`,
		doctorID, date,
	).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) Insert(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (doctor_id, doctor_name, hospital_name, appointment_date,
			day_seq, patient_name, patient_phone, phone_key, status)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		a.DoctorID, a.DoctorName, a.HospitalName, a.Date,
		a.DaySeq, a.PatientName, a.PatientPhone, a.PhoneKey, string(a.Status),
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return errSeqTaken
	}
	return err
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListByPhone(ctx context.Context, phoneKey string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE phone_key = $1
		ORDER BY appointment_date DESC, id DESC`, phoneKey)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID int64, limit, offset int) ([]*Appointment, int, error) {
	total, err := r.CountForDoctor(ctx, doctorID)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE doctor_id = $1
		ORDER BY appointment_date DESC, id DESC
		LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAppointments(rows)
	return items, total, err
}

func (r *appointmentRepoPG) CountForDoctor(ctx context.Context, doctorID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE doctor_id = $1`, doctorID).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) NextIDHint(ctx context.Context) (int64, error) {
	var next int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM appointment`).Scan(&next)
	return next, err
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.DoctorID, &a.DoctorName, &a.HospitalName,
		&a.Date, &a.DaySeq, &a.PatientName, &a.PatientPhone,
		&a.PhoneKey, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
