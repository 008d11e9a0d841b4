package booking

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/roster"
)

// DoctorLookup resolves doctors for admission. *roster.Service implements it.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id int64) (*roster.Doctor, error)
}

// StatsCache holds per-doctor Counts. Implementations swallow their own
// errors: a failed Get is a miss.
type StatsCache interface {
	Get(ctx context.Context, doctorID int64, day string) (*Counts, bool)
	Put(ctx context.Context, doctorID int64, c *Counts)
	Invalidate(ctx context.Context, doctorID int64)
}

// Recorder receives admission and status-change outcomes. *metrics.Metrics
// implements it.
type Recorder interface {
	ObserveAdmission(outcome string)
	ObserveStatusChange(op, outcome string)
}

type nopCache struct{}

func (nopCache) Get(context.Context, int64, string) (*Counts, bool) { return nil, false }
func (nopCache) Put(context.Context, int64, *Counts)                {}
func (nopCache) Invalidate(context.Context, int64)                  {}

type nopRecorder struct{}

func (nopRecorder) ObserveAdmission(string)           {}
func (nopRecorder) ObserveStatusChange(string, string) {}

const minPatientNameLen = 2

type Service struct {
	tx      Transactor
	repo    Repository
	doctors DoctorLookup
	loc     *time.Location
	now     func() time.Time
	cache   StatsCache
	metrics Recorder
	logger  zerolog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithStatsCache(c StatsCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// NewService builds the admission controller. loc is the zone in which
// "today" is evaluated; nil means UTC.
func NewService(tx Transactor, repo Repository, doctors DoctorLookup, loc *time.Location, logger zerolog.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		tx:      tx,
		repo:    repo,
		doctors: doctors,
		loc:     loc,
		now:     time.Now,
		cache:   nopCache{},
		metrics: nopRecorder{},
		logger:  logger.With().Str("component", "booking").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// Today is the current calendar date in the service time zone.
func (s *Service) Today() string {
	return s.clock().Format(roster.DateLayout)
}

// Doctor resolves id, mapping a missing doctor to ErrDoctorNotFound.
func (s *Service) Doctor(ctx context.Context, id int64) (*roster.Doctor, error) {
	d, err := s.doctors.GetDoctor(ctx, id)
	if err != nil {
		if roster.IsNotFound(err) {
			return nil, ErrDoctorNotFound
		}
		return nil, storageFailure("get doctor", err)
	}
	return d, nil
}

func dailyCap(d *roster.Doctor) int {
	if d.DailyCap < 1 {
		return roster.DefaultDailyCap
	}
	return d.DailyCap
}

// Admit books a patient with a doctor on a date. The capacity check and
// insert run under a per-(doctor, date) lock; every appointment on that day,
// cancelled ones included, counts toward the cap.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	adm, err := s.admit(ctx, req)
	if err != nil {
		s.metrics.ObserveAdmission(KindOf(err))
		if errors.Is(err, ErrStorageFailure) {
			s.logger.Error().Err(err).Int64("doctor_id", req.DoctorID).Msg("admission failed")
		} else {
			s.logger.Debug().Str("kind", KindOf(err)).Int64("doctor_id", req.DoctorID).Msg("admission rejected")
		}
		return nil, err
	}

	s.metrics.ObserveAdmission("admitted")
	s.cache.Invalidate(ctx, req.DoctorID)
	s.logger.Info().
		Int64("appointment_id", adm.AppointmentID).
		Int64("doctor_id", req.DoctorID).
		Str("date", adm.Date).
		Int("day_seq", adm.DaySeq).
		Msg("appointment admitted")
	return adm, nil
}

func (s *Service) admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	name := strings.TrimSpace(req.PatientName)
	if utf8.RuneCountInString(name) < minPatientNameLen {
		return nil, ErrInvalidPatientName
	}
	phoneKey, err := NormalizePhone(req.PatientPhone)
	if err != nil {
		return nil, err
	}
	day, err := time.Parse(roster.DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		return nil, ErrInvalidDate
	}
	date := day.Format(roster.DateLayout)

	doctor, err := s.Doctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if av := Evaluate(doctor, s.clock()); !av.Available {
		return nil, &UnavailableError{Reason: av.Reason, Detail: av.Detail}
	}

	limit := dailyCap(doctor)
	appt := &Appointment{
		DoctorID:     doctor.ID,
		DoctorName:   doctor.Name,
		HospitalName: doctor.HospitalName,
		Date:         date,
		PatientName:  name,
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		PhoneKey:     phoneKey,
		Status:       StatusConfirmed,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockDay(ctx, doctor.ID, date); err != nil {
			return storageFailure("lock day", err)
		}
		count, err := s.repo.CountForDay(ctx, doctor.ID, date)
		if err != nil {
			return storageFailure("count day", err)
		}
		if count >= limit {
			return &CapacityError{Cap: limit}
		}
		appt.DaySeq = count + 1
		if err := s.repo.Insert(ctx, appt); err != nil {
			if errors.Is(err, errSeqTaken) {
				return &CapacityError{Cap: limit}
			}
			return storageFailure("insert appointment", err)
		}
		return nil
	})
	if err != nil {
		if !isDomainError(err) && !errors.Is(err, ErrStorageFailure) {
			err = storageFailure("admit", err)
		}
		return nil, err
	}

	return &Admission{
		AppointmentID: appt.ID,
		Status:        appt.Status,
		DaySeq:        appt.DaySeq,
		DoctorName:    appt.DoctorName,
		HospitalName:  appt.HospitalName,
		Date:          appt.Date,
	}, nil
}

// Cancel marks the appointment cancelled. Cancelling twice succeeds.
func (s *Service) Cancel(ctx context.Context, id int64, phone string) (*Ack, error) {
	return s.changeStatus(ctx, "cancel", id, phone, func(a *Appointment) (bool, error) {
		return a.Status != StatusCancelled, nil
	}, StatusCancelled)
}

// Confirm re-confirms a cancelled appointment. Confirming a confirmed one
// fails with ErrAlreadyConfirmed.
func (s *Service) Confirm(ctx context.Context, id int64, phone string) (*Ack, error) {
	return s.changeStatus(ctx, "confirm", id, phone, func(a *Appointment) (bool, error) {
		if a.Status == StatusConfirmed {
			return false, ErrAlreadyConfirmed
		}
		return true, nil
	}, StatusConfirmed)
}

// changeStatus row-locks the appointment, checks the caller's phone against
// the stored key, then lets decide say whether to write target.
func (s *Service) changeStatus(ctx context.Context, op string, id int64, phone string,
	decide func(*Appointment) (bool, error), target Status) (*Ack, error) {

	presented := phoneDigits(phone)
	var doctorID int64

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return storageFailure("load appointment", err)
		}
		if a.PhoneKey != presented {
			return ErrUnauthorized
		}
		doctorID = a.DoctorID

		write, err := decide(a)
		if err != nil || !write {
			return err
		}
		if err := s.repo.SetStatus(ctx, id, target); err != nil {
			return storageFailure("set status", err)
		}
		return nil
	})

	if err != nil {
		if !isDomainError(err) && !errors.Is(err, ErrStorageFailure) {
			err = storageFailure(op, err)
		}
		s.metrics.ObserveStatusChange(op, KindOf(err))
		if errors.Is(err, ErrStorageFailure) {
			s.logger.Error().Err(err).Str("op", op).Int64("appointment_id", id).Msg("status change failed")
		}
		return nil, err
	}

	s.metrics.ObserveStatusChange(op, "ok")
	s.cache.Invalidate(ctx, doctorID)
	s.logger.Info().Str("op", op).Int64("appointment_id", id).Str("status", string(target)).Msg("appointment status changed")
	return &Ack{AppointmentID: id, Status: target}, nil
}

// Stats reports the booking-form numbers for a doctor. Counts may come from
// the stats cache; cap and availability are always evaluated fresh.
func (s *Service) Stats(ctx context.Context, doctorID int64) (*Stats, error) {
	doctor, err := s.Doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	today := now.Format(roster.DateLayout)

	counts, ok := s.cache.Get(ctx, doctorID, today)
	if !ok || counts.Day != today {
		counts, err = s.loadCounts(ctx, doctorID, today)
		if err != nil {
			s.logger.Error().Err(err).Int64("doctor_id", doctorID).Msg("load stats failed")
			return nil, err
		}
		s.cache.Put(ctx, doctorID, counts)
	}

	limit := dailyCap(doctor)
	av := Evaluate(doctor, now)
	return &Stats{
		DoctorID:     doctorID,
		Date:         today,
		TotalCount:   counts.TotalCount,
		TodayCount:   counts.TodayCount,
		Cap:          limit,
		CanBookToday: counts.TodayCount < limit && av.Available,
		NextIDHint:   counts.NextIDHint,
		DefaultDate:  DefaultBookingDate(now),
		Availability: av,
	}, nil
}

func (s *Service) loadCounts(ctx context.Context, doctorID int64, today string) (*Counts, error) {
	total, err := s.repo.CountForDoctor(ctx, doctorID)
	if err != nil {
		return nil, storageFailure("count doctor", err)
	}
	todayCount, err := s.repo.CountForDay(ctx, doctorID, today)
	if err != nil {
		return nil, storageFailure("count today", err)
	}
	next, err := s.repo.NextIDHint(ctx)
	if err != nil {
		return nil, storageFailure("next id", err)
	}
	return &Counts{Day: today, TotalCount: total, TodayCount: todayCount, NextIDHint: next}, nil
}

// ListByPhone returns the patient's appointments, newest date first.
func (s *Service) ListByPhone(ctx context.Context, phone string) ([]*Appointment, error) {
	key, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByPhone(ctx, key)
	if err != nil {
		return nil, storageFailure("list by phone", err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, nil
}

// ListByDoctor pages through a doctor's appointment history. History
// outlives the doctor, so a deleted doctor is not an error here.
func (s *Service) ListByDoctor(ctx context.Context, doctorID int64, limit, offset int) ([]*Appointment, int, error) {
	items, total, err := s.repo.ListByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, 0, storageFailure("list by doctor", err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, total, nil
}
