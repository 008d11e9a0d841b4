package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/roster"
)

// monday is 08:30 IST on Monday 3 June 2024.
var monday = time.Date(2024, time.June, 3, 8, 30, 0, 0, ist)

type fixture struct {
	roster *roster.Service
	repo   Repository
	svc    *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	hospitals := roster.NewMemoryHospitalRepo()
	rs := roster.NewService(hospitals, roster.NewMemoryDoctorRepo(hospitals), 3, zerolog.Nop())
	if _, err := rs.UpsertHospital(context.Background(), "citycare", roster.HospitalInput{Name: "City Care", Location: "Pune"}); err != nil {
		t.Fatalf("UpsertHospital: %v", err)
	}

	repo := NewMemoryAppointmentRepo()
	opts = append([]Option{WithClock(func() time.Time { return monday })}, opts...)
	svc := NewService(NewMemoryTransactor(), repo, rs, ist, zerolog.Nop(), opts...)
	return &fixture{roster: rs, repo: repo, svc: svc}
}

func (f *fixture) doctor(t *testing.T, in roster.DoctorInput) *roster.Doctor {
	t.Helper()
	if in.Name == "" {
		in.Name = "Dr. Rao"
	}
	d, err := f.roster.CreateDoctor(context.Background(), "citycare", in)
	if err != nil {
		t.Fatalf("CreateDoctor: %v", err)
	}
	return d
}

func capOf(n int) *int { return &n }

func admitReq(doctorID int64, date, phone string) AdmitRequest {
	return AdmitRequest{DoctorID: doctorID, Date: date, PatientName: "Jane Doe", PatientPhone: phone}
}

func TestAdmit_CapacityUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{DailyCap: capOf(3)})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]error, callers)
	seqs := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			adm, err := f.svc.Admit(context.Background(), admitReq(d.ID, "2024-06-10", "9876543210"))
			results[i] = err
			if adm != nil {
				seqs[i] = adm.DaySeq
			}
		}(i)
	}
	wg.Wait()

	admitted, rejected := 0, 0
	seen := map[int]bool{}
	for i, err := range results {
		var capErr *CapacityError
		switch {
		case err == nil:
			admitted++
			if seen[seqs[i]] {
				t.Errorf("day_seq %d assigned twice", seqs[i])
			}
			seen[seqs[i]] = true
		case errors.As(err, &capErr):
			rejected++
			if capErr.Cap != 3 {
				t.Errorf("expected cap 3 in error, got %d", capErr.Cap)
			}
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if admitted != 3 || rejected != 2 {
		t.Errorf("expected 3 admitted and 2 rejected, got %d and %d", admitted, rejected)
	}
	for seq := 1; seq <= 3; seq++ {
		if !seen[seq] {
			t.Errorf("day_seq %d was never assigned", seq)
		}
	}
}

func TestAdmit_CapOfOne(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{DailyCap: capOf(1)})
	ctx := context.Background()

	adm, err := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-01", "9876543210"))
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if adm.AppointmentID != 1 || adm.Status != StatusConfirmed || adm.DaySeq != 1 {
		t.Errorf("unexpected admission: %+v", adm)
	}
	if adm.DoctorName != "Dr. Rao" || adm.HospitalName != "City Care" || adm.Date != "2024-06-01" {
		t.Errorf("names and date must be captured: %+v", adm)
	}

	_, err = f.svc.Admit(ctx, admitReq(d.ID, "2024-06-01", "9123456780"))
	var capErr *CapacityError
	if !errors.As(err, &capErr) || capErr.Cap != 1 {
		t.Fatalf("expected CapacityExceeded{1}, got %v", err)
	}

	if _, err := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-02", "9123456780")); err != nil {
		t.Errorf("another date has its own capacity: %v", err)
	}
}

func TestAdmit_Validation(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})

	tests := []struct {
		name string
		req  AdmitRequest
		want error
	}{
		{"one letter name", AdmitRequest{DoctorID: d.ID, Date: "2024-06-10", PatientName: "A", PatientPhone: "9876543210"}, ErrInvalidPatientName},
		{"padded one letter name", AdmitRequest{DoctorID: d.ID, Date: "2024-06-10", PatientName: "  A  ", PatientPhone: "9876543210"}, ErrInvalidPatientName},
		{"short phone", AdmitRequest{DoctorID: d.ID, Date: "2024-06-10", PatientName: "Jane", PatientPhone: "12345"}, ErrInvalidPhone},
		{"bad date", AdmitRequest{DoctorID: d.ID, Date: "10/06/2024", PatientName: "Jane", PatientPhone: "9876543210"}, ErrInvalidDate},
		{"missing doctor", AdmitRequest{DoctorID: 99, Date: "2024-06-10", PatientName: "Jane", PatientPhone: "9876543210"}, ErrDoctorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Admit(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if n, _ := f.repo.CountForDoctor(context.Background(), d.ID); n != 0 {
		t.Errorf("rejected admissions must not store anything, found %d", n)
	}
}

func TestAdmit_TwoLetterNameAccepted(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})

	req := AdmitRequest{DoctorID: d.ID, Date: "2024-06-10", PatientName: "Jo", PatientPhone: "9876543210"}
	if _, err := f.svc.Admit(context.Background(), req); err != nil {
		t.Errorf("two-letter name should be accepted: %v", err)
	}
}

func TestAdmit_WeeklyHolidayToday(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{WeeklyHolidays: "Monday"})

	for _, date := range []string{"2024-06-03", "2024-06-04", "2024-07-15"} {
		_, err := f.svc.Admit(context.Background(), admitReq(d.ID, date, "9876543210"))
		var un *UnavailableError
		if !errors.As(err, &un) {
			t.Fatalf("date %s: expected DoctorUnavailable, got %v", date, err)
		}
		if un.Reason != ReasonWeeklyHoliday || un.Detail != "Monday" {
			t.Errorf("date %s: unexpected reason %+v", date, un)
		}
	}
}

func TestAdmit_EmergencyLeaveToday(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{EmergencyLeaveDate: "2024-06-03", EmergencyLeaveSession: "full day"})

	_, err := f.svc.Admit(context.Background(), admitReq(d.ID, "2024-06-05", "9876543210"))
	var un *UnavailableError
	if !errors.As(err, &un) || un.Reason != ReasonEmergencyLeave || un.Detail != "full day" {
		t.Fatalf("expected emergency_leave, got %v", err)
	}
}

func TestAdmit_UsesDefaultCap(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210")); err != nil {
			t.Fatalf("admit %d: %v", i+1, err)
		}
	}
	if _, err := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210")); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected CapacityExceeded after 3, got %v", err)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})
	ctx := context.Background()
	adm, _ := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "98765-43210"))

	for i := 0; i < 2; i++ {
		ack, err := f.svc.Cancel(ctx, adm.AppointmentID, "9876543210")
		if err != nil {
			t.Fatalf("cancel %d: %v", i+1, err)
		}
		if ack.Status != StatusCancelled || ack.AppointmentID != adm.AppointmentID {
			t.Errorf("unexpected ack: %+v", ack)
		}
	}

	a, _ := f.repo.GetForUpdate(ctx, adm.AppointmentID)
	if a.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", a.Status)
	}
}

func TestCancelledAppointmentsStillCountTowardCap(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{DailyCap: capOf(1)})
	ctx := context.Background()

	adm, _ := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210"))
	if _, err := f.svc.Cancel(ctx, adm.AppointmentID, "9876543210"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9123456780")); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("cancelled slot must not free capacity, got %v", err)
	}
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})
	ctx := context.Background()
	adm, _ := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210"))

	if _, err := f.svc.Confirm(ctx, adm.AppointmentID, "9876543210"); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected AlreadyConfirmed, got %v", err)
	}

	if _, err := f.svc.Cancel(ctx, adm.AppointmentID, "9876543210"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	ack, err := f.svc.Confirm(ctx, adm.AppointmentID, "(987) 654-3210")
	if err != nil {
		t.Fatalf("confirm after cancel: %v", err)
	}
	if ack.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", ack.Status)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})
	ctx := context.Background()
	adm, _ := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210"))

	for _, phone := range []string{"9876543211", "1876543210", "", "98765"} {
		if _, err := f.svc.Cancel(ctx, adm.AppointmentID, phone); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("cancel with %q: expected Unauthorized, got %v", phone, err)
		}
	}

	f.svc.Cancel(ctx, adm.AppointmentID, "9876543210")
	if _, err := f.svc.Confirm(ctx, adm.AppointmentID, "9876543219"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("confirm with wrong phone: expected Unauthorized, got %v", err)
	}

	a, _ := f.repo.GetForUpdate(ctx, adm.AppointmentID)
	if a.Status != StatusCancelled {
		t.Errorf("status must be unchanged by unauthorized calls, got %s", a.Status)
	}
}

func TestPhoneFormatsAreInterchangeable(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})
	ctx := context.Background()
	adm, _ := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "(987) 654-3210"))

	if _, err := f.svc.Cancel(ctx, adm.AppointmentID, "98765-43210"); err != nil {
		t.Errorf("cancel with reformatted phone: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, adm.AppointmentID, "9876543210"); err != nil {
		t.Errorf("confirm with bare digits: %v", err)
	}
	items, err := f.svc.ListByPhone(ctx, "98765 43210")
	if err != nil || len(items) != 1 {
		t.Fatalf("expected 1 appointment by phone, got %d (%v)", len(items), err)
	}
	if items[0].PatientPhone != "(987) 654-3210" {
		t.Errorf("phone must be kept as entered, got %q", items[0].PatientPhone)
	}
}

func TestStatusChange_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Cancel(context.Background(), 42, "9876543210"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancel: expected NotFound, got %v", err)
	}
	if _, err := f.svc.Confirm(context.Background(), 42, "9876543210"); !errors.Is(err, ErrNotFound) {
		t.Errorf("confirm: expected NotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	rao := f.doctor(t, roster.DoctorInput{DailyCap: capOf(2)})
	iyer := f.doctor(t, roster.DoctorInput{Name: "Dr. Iyer"})
	ctx := context.Background()

	f.svc.Admit(ctx, admitReq(rao.ID, "2024-06-03", "9876543210"))
	f.svc.Admit(ctx, admitReq(rao.ID, "2024-06-04", "9876543210"))
	f.svc.Admit(ctx, admitReq(iyer.ID, "2024-06-03", "9876543210"))

	stats, err := f.svc.Stats(ctx, rao.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalCount != 2 || stats.TodayCount != 1 || stats.Cap != 2 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.NextIDHint != 4 {
		t.Errorf("expected next id hint 4, got %d", stats.NextIDHint)
	}
	if !stats.CanBookToday || !stats.Availability.Available {
		t.Errorf("expected bookable today: %+v", stats)
	}
	if stats.Date != "2024-06-03" || stats.DefaultDate != "2024-06-03" {
		t.Errorf("unexpected dates: %s / %s", stats.Date, stats.DefaultDate)
	}

	f.svc.Admit(ctx, admitReq(rao.ID, "2024-06-03", "9123456780"))
	stats, _ = f.svc.Stats(ctx, rao.ID)
	if stats.CanBookToday {
		t.Error("doctor at cap today cannot book today")
	}
}

func TestStats_UnavailableDoctor(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{WeeklyHolidays: "mon"})

	stats, err := f.svc.Stats(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CanBookToday || stats.Availability.Reason != ReasonWeeklyHoliday {
		t.Errorf("holiday doctor must not be bookable today: %+v", stats)
	}
}

func TestStats_DoctorNotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Stats(context.Background(), 7); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected DoctorNotFound, got %v", err)
	}
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[int64]Counts
	hits        int
	invalidated []int64
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[int64]Counts{}} }

func (c *fakeCache) Get(_ context.Context, doctorID int64, day string) (*Counts, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[doctorID]
	if !ok || e.Day != day {
		return nil, false
	}
	c.hits++
	return &e, true
}

func (c *fakeCache) Put(_ context.Context, doctorID int64, counts *Counts) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[doctorID] = *counts
}

func (c *fakeCache) Invalidate(_ context.Context, doctorID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, doctorID)
	c.invalidated = append(c.invalidated, doctorID)
}

func TestStats_Cache(t *testing.T) {
	cache := newFakeCache()
	f := newFixture(t, WithStatsCache(cache))
	d := f.doctor(t, roster.DoctorInput{})
	ctx := context.Background()

	f.svc.Stats(ctx, d.ID)
	f.svc.Stats(ctx, d.ID)
	if cache.hits != 1 {
		t.Errorf("expected second Stats to hit the cache, hits=%d", cache.hits)
	}

	adm, _ := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-03", "9876543210"))
	f.svc.Cancel(ctx, adm.AppointmentID, "9876543210")
	f.svc.Confirm(ctx, adm.AppointmentID, "9876543210")
	if len(cache.invalidated) != 3 {
		t.Errorf("expected admit, cancel and confirm to invalidate, got %v", cache.invalidated)
	}

	stats, _ := f.svc.Stats(ctx, d.ID)
	if stats.TodayCount != 1 {
		t.Errorf("stats after invalidation must be fresh, got today_count %d", stats.TodayCount)
	}

	cache.Put(ctx, d.ID, &Counts{Day: "2024-06-02", TodayCount: 9})
	stats, _ = f.svc.Stats(ctx, d.ID)
	if stats.TodayCount != 1 {
		t.Errorf("entry from another day must be ignored, got today_count %d", stats.TodayCount)
	}
}

type fakeRecorder struct {
	mu         sync.Mutex
	admissions map[string]int
	changes    map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{admissions: map[string]int{}, changes: map[string]int{}}
}

func (r *fakeRecorder) ObserveAdmission(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admissions[outcome]++
}

func (r *fakeRecorder) ObserveStatusChange(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes[op+"/"+outcome]++
}

func TestRecorderSeesOutcomes(t *testing.T) {
	rec := newFakeRecorder()
	f := newFixture(t, WithRecorder(rec))
	d := f.doctor(t, roster.DoctorInput{DailyCap: capOf(1)})
	ctx := context.Background()

	adm, _ := f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210"))
	f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210"))
	f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "123"))
	f.svc.Confirm(ctx, adm.AppointmentID, "9876543210")
	f.svc.Cancel(ctx, adm.AppointmentID, "9876543210")

	if rec.admissions["admitted"] != 1 || rec.admissions["CapacityExceeded"] != 1 || rec.admissions["InvalidPhone"] != 1 {
		t.Errorf("unexpected admissions: %v", rec.admissions)
	}
	if rec.changes["confirm/AlreadyConfirmed"] != 1 || rec.changes["cancel/ok"] != 1 {
		t.Errorf("unexpected status changes: %v", rec.changes)
	}
}

func TestListByPhone(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})
	ctx := context.Background()

	f.svc.Admit(ctx, admitReq(d.ID, "2024-06-05", "9876543210"))
	f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210"))
	f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9876543210"))
	f.svc.Admit(ctx, admitReq(d.ID, "2024-06-10", "9123456780"))

	items, err := f.svc.ListByPhone(ctx, "9876543210")
	if err != nil {
		t.Fatalf("ListByPhone: %v", err)
	}
	want := []int64{3, 2, 1}
	if len(items) != len(want) {
		t.Fatalf("expected %d appointments, got %d", len(want), len(items))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("position %d: expected id %d, got %d", i, id, items[i].ID)
		}
	}

	if _, err := f.svc.ListByPhone(ctx, "12345"); !errors.Is(err, ErrInvalidPhone) {
		t.Errorf("expected InvalidPhone, got %v", err)
	}
	none, err := f.svc.ListByPhone(ctx, "9000000000")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil list, got %v (%v)", none, err)
	}
}

func TestListByDoctor_SurvivesDeletion(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, roster.DoctorInput{})
	ctx := context.Background()

	for _, date := range []string{"2024-06-04", "2024-06-05", "2024-06-06"} {
		f.svc.Admit(ctx, admitReq(d.ID, date, "9876543210"))
	}
	if err := f.roster.DeleteDoctor(ctx, "citycare", d.ID); err != nil {
		t.Fatalf("DeleteDoctor: %v", err)
	}

	items, total, err := f.svc.ListByDoctor(ctx, d.ID, 2, 0)
	if err != nil {
		t.Fatalf("ListByDoctor: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(items), total)
	}
	if items[0].Date != "2024-06-06" || items[0].DoctorName != "Dr. Rao" {
		t.Errorf("unexpected first item: %+v", items[0])
	}
}

type failingRepo struct {
	Repository
}

func (failingRepo) CountForDay(context.Context, int64, string) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestAdmit_StorageFailure(t *testing.T) {
	hospitals := roster.NewMemoryHospitalRepo()
	rs := roster.NewService(hospitals, roster.NewMemoryDoctorRepo(hospitals), 3, zerolog.Nop())
	d, _ := rs.CreateDoctor(context.Background(), "citycare", roster.DoctorInput{Name: "Dr. Rao"})

	repo := failingRepo{NewMemoryAppointmentRepo()}
	svc := NewService(NewMemoryTransactor(), repo, rs, ist, zerolog.Nop(), WithClock(func() time.Time { return monday }))

	_, err := svc.Admit(context.Background(), admitReq(d.ID, "2024-06-10", "9876543210"))
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("expected StorageFailure, got %v", err)
	}
	if KindOf(err) != "StorageFailure" {
		t.Errorf("unexpected kind %s", KindOf(err))
	}
}

func TestToday_UsesServiceZone(t *testing.T) {
	// 20:00 UTC on 2 June is already 3 June in IST.
	utcEvening := time.Date(2024, time.June, 2, 20, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryTransactor(), NewMemoryAppointmentRepo(), nil, ist, zerolog.Nop(),
		WithClock(func() time.Time { return utcEvening }))
	if got := svc.Today(); got != "2024-06-03" {
		t.Errorf("Today() = %s, want 2024-06-03", got)
	}
}

func TestMemoryTransactor_Nested(t *testing.T) {
	tx := NewMemoryTransactor()
	done := false
	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return tx.WithinTx(ctx, func(context.Context) error {
			done = true
			return nil
		})
	})
	if err != nil || !done {
		t.Errorf("nested WithinTx must join the outer unit: err=%v done=%v", err, done)
	}
}
