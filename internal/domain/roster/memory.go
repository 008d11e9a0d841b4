package roster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carebook/carebook/pkg/pagination"
)

// In-memory repositories back STORE_BACKEND=memory and the unit tests.

type hospitalRepoMem struct {
	mu   sync.RWMutex
	rows map[string]Hospital
	now  func() time.Time
}

func NewMemoryHospitalRepo() HospitalRepository {
	return &hospitalRepoMem{rows: make(map[string]Hospital), now: time.Now}
}

func (r *hospitalRepoMem) Upsert(_ context.Context, h *Hospital) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.rows[h.Username]; ok {
		h.CreatedAt = existing.CreatedAt
	} else {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	r.rows[h.Username] = *h
	return nil
}

func (r *hospitalRepoMem) EnsureExists(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[username]; ok {
		return nil
	}
	now := r.now()
	r.rows[username] = Hospital{
		Username:  username,
		Name:      username,
		Location:  NotSetLocation,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (r *hospitalRepoMem) GetByUsername(_ context.Context, username string) (*Hospital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.rows[username]
	if !ok {
		return nil, ErrHospitalNotFound
	}
	return &h, nil
}

func (r *hospitalRepoMem) List(_ context.Context) ([]*Hospital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Hospital, 0, len(r.rows))
	for _, h := range r.rows {
		h := h
		out = append(out, &h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

type doctorRepoMem struct {
	mu        sync.RWMutex
	rows      map[int64]Doctor
	nextID    int64
	hospitals HospitalRepository
	now       func() time.Time
}

// NewMemoryDoctorRepo returns an in-memory doctor repository. hospitals, when
// non-nil, supplies HospitalName on reads the way the Postgres join does.
func NewMemoryDoctorRepo(hospitals HospitalRepository) DoctorRepository {
	return &doctorRepoMem{rows: make(map[int64]Doctor), hospitals: hospitals, now: time.Now}
}

func cloneDoctor(d Doctor) *Doctor {
	d.WeeklyHolidays = append([]string{}, d.WeeklyHolidays...)
	if d.EmergencyLeave != nil {
		leave := *d.EmergencyLeave
		d.EmergencyLeave = &leave
	}
	return &d
}

func (r *doctorRepoMem) withHospitalName(ctx context.Context, d *Doctor) *Doctor {
	if r.hospitals == nil {
		return d
	}
	if h, err := r.hospitals.GetByUsername(ctx, d.HospitalUsername); err == nil {
		d.HospitalName = h.Name
	}
	return d
}

func (r *doctorRepoMem) Create(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	d.ID = r.nextID
	d.CreatedAt = r.now()
	d.UpdatedAt = d.CreatedAt
	r.rows[d.ID] = *cloneDoctor(*d)
	return nil
}

func (r *doctorRepoMem) Update(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rows[d.ID]
	if !ok {
		return ErrDoctorNotFound
	}
	d.HospitalUsername = existing.HospitalUsername
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = r.now()
	r.rows[d.ID] = *cloneDoctor(*d)
	return nil
}

func (r *doctorRepoMem) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return ErrDoctorNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *doctorRepoMem) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	r.mu.RLock()
	d, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return r.withHospitalName(ctx, cloneDoctor(d)), nil
}

func (r *doctorRepoMem) sorted(keep func(Doctor) bool) []Doctor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Doctor
	for _, d := range r.rows {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *doctorRepoMem) ListByHospital(ctx context.Context, username string, limit, offset int) ([]*Doctor, int, error) {
	all := r.sorted(func(d Doctor) bool { return d.HospitalUsername == username })
	total := len(all)

	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(total)

	var out []*Doctor
	for _, d := range all[start:end] {
		out = append(out, r.withHospitalName(ctx, cloneDoctor(d)))
	}
	return out, total, nil
}

func (r *doctorRepoMem) ListByHospitals(ctx context.Context, usernames []string) ([]*Doctor, error) {
	want := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		want[u] = true
	}

	var out []*Doctor
	for _, d := range r.sorted(func(d Doctor) bool { return want[d.HospitalUsername] }) {
		out = append(out, r.withHospitalName(ctx, cloneDoctor(d)))
	}
	return out, nil
}

func (r *doctorRepoMem) ClearLeaveBefore(_ context.Context, day string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	now := r.now()
	for id, d := range r.rows {
		// YYYY-MM-DD compares correctly as a string.
		if d.EmergencyLeave != nil && d.EmergencyLeave.Date < day {
			d.EmergencyLeave = nil
			d.UpdatedAt = now
			r.rows[id] = d
			n++
		}
	}
	return n, nil
}
