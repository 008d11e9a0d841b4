package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carebook/carebook/pkg/pagination"
)

type memTxKey struct{}

// MemoryTransactor serializes units of work with a mutex. It stands in for
// the Postgres transaction and advisory lock on the memory backend. Writes
// are not rolled back on error, so callers write last.
type MemoryTransactor struct {
	mu sync.Mutex
}

func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

// WithinTx runs fn while holding the transactor lock. A nested call joins
// the outer unit of work.
func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, true))
}

type dayKey struct {
	doctorID int64
	date     string
	seq      int
}

type appointmentRepoMem struct {
	mu     sync.RWMutex
	rows   map[int64]Appointment
	seqs   map[dayKey]int64
	nextID int64
	now    func() time.Time
}

// NewMemoryAppointmentRepo returns an in-memory Repository. Pair it with a
// MemoryTransactor.
func NewMemoryAppointmentRepo() Repository {
	return &appointmentRepoMem{
		rows: make(map[int64]Appointment),
		seqs: make(map[dayKey]int64),
		now:  time.Now,
	}
}

// LockDay is covered by MemoryTransactor.
func (r *appointmentRepoMem) LockDay(context.Context, int64, string) error { return nil }

func (r *appointmentRepoMem) CountForDay(_ context.Context, doctorID int64, date string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.rows {
		if a.DoctorID == doctorID && a.Date == date {
			n++
		}
	}
	return n, nil
}

func (r *appointmentRepoMem) Insert(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dayKey{doctorID: a.DoctorID, date: a.Date, seq: a.DaySeq}
	if _, taken := r.seqs[key]; taken {
		return errSeqTaken
	}
	r.nextID++
	a.ID = r.nextID
	a.CreatedAt = r.now()
	a.UpdatedAt = a.CreatedAt
	r.rows[a.ID] = *a
	r.seqs[key] = a.ID
	return nil
}

func (r *appointmentRepoMem) GetForUpdate(_ context.Context, id int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *appointmentRepoMem) SetStatus(_ context.Context, id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = r.now()
	r.rows[id] = a
	return nil
}

// newestFirst orders by date descending then id descending.
func (r *appointmentRepoMem) newestFirst(keep func(Appointment) bool) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Appointment
	for _, a := range r.rows {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *appointmentRepoMem) ListByPhone(_ context.Context, phoneKey string) ([]*Appointment, error) {
	return r.newestFirst(func(a Appointment) bool { return a.PhoneKey == phoneKey }), nil
}

func (r *appointmentRepoMem) ListByDoctor(_ context.Context, doctorID int64, limit, offset int) ([]*Appointment, int, error) {
	all := r.newestFirst(func(a Appointment) bool { return a.DoctorID == doctorID })
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(all))
	return all[start:end], len(all), nil
}

func (r *appointmentRepoMem) CountForDoctor(_ context.Context, doctorID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.rows {
		if a.DoctorID == doctorID {
			n++
		}
	}
	return n, nil
}

func (r *appointmentRepoMem) NextIDHint(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID + 1, nil
}
