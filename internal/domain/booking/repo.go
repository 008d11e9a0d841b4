package booking

import (
	"context"
	"errors"
)

// Transactor runs fn as one unit of work. *db.Transactor and
// MemoryTransactor implement it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository persists appointments. Methods called with a context from
// Transactor.WithinTx take part in that transaction.
type Repository interface {
	// LockDay serializes admissions for (doctorID, date) until the
	// surrounding transaction ends.
	LockDay(ctx context.Context, doctorID int64, date string) error
	// CountForDay counts every appointment for (doctorID, date) whatever
	// its status.
	CountForDay(ctx context.Context, doctorID int64, date string) (int, error)
	// Insert stores a and sets its ID and timestamps. It returns
	// errSeqTaken when (doctor, date, day_seq) already exists.
	Insert(ctx context.Context, a *Appointment) error
	// GetForUpdate loads and row-locks an appointment.
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	SetStatus(ctx context.Context, id int64, status Status) error

	ListByPhone(ctx context.Context, phoneKey string) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID int64, limit, offset int) ([]*Appointment, int, error)
	CountForDoctor(ctx context.Context, doctorID int64) (int, error)
	NextIDHint(ctx context.Context) (int64, error)
}

var errSeqTaken = errors.New("day sequence already taken")
