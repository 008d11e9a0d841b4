package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type Service struct {
	hospitals  HospitalRepository
	doctors    DoctorRepository
	defaultCap int
	logger     zerolog.Logger
}

func NewService(hospitals HospitalRepository, doctors DoctorRepository, defaultCap int, logger zerolog.Logger) *Service {
	if defaultCap < 1 {
		defaultCap = DefaultDailyCap
	}
	return &Service{
		hospitals:  hospitals,
		doctors:    doctors,
		defaultCap: defaultCap,
		logger:     logger.With().Str("component", "roster").Logger(),
	}
}

// -- Hospital --

// RegisterHospital creates the placeholder profile owned by a new staff login.
func (s *Service) RegisterHospital(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidHospital)
	}
	return s.hospitals.EnsureExists(ctx, username)
}

func (s *Service) UpsertHospital(ctx context.Context, username string, in HospitalInput) (*Hospital, error) {
	h := &Hospital{
		Username: username,
		Name:     strings.TrimSpace(in.Name),
		Location: strings.TrimSpace(in.Location),
	}
	if h.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidHospital)
	}
	if h.Location == "" {
		h.Location = NotSetLocation
	}
	if err := s.hospitals.Upsert(ctx, h); err != nil {
		return nil, fmt.Errorf("save hospital: %w", err)
	}
	s.logger.Info().Str("hospital", username).Bool("listed", h.Listed()).Msg("hospital profile saved")
	return h, nil
}

func (s *Service) GetHospital(ctx context.Context, username string) (*Hospital, error) {
	return s.hospitals.GetByUsername(ctx, username)
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, hospital string, in DoctorInput) (*Doctor, error) {
	d := &Doctor{HospitalUsername: hospital, DailyCap: s.defaultCap}
	if err := in.apply(d); err != nil {
		return nil, err
	}
	if err := s.hospitals.EnsureExists(ctx, hospital); err != nil {
		return nil, fmt.Errorf("ensure hospital: %w", err)
	}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	s.logger.Info().Str("hospital", hospital).Int64("doctor_id", d.ID).Msg("doctor created")
	return d, nil
}

// UpdateDoctor replaces the doctor's editable fields. A nil DailyCap keeps the
// current cap.
func (s *Service) UpdateDoctor(ctx context.Context, hospital string, id int64, in DoctorInput) (*Doctor, error) {
	d, err := s.GetOwnedDoctor(ctx, hospital, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(d); err != nil {
		return nil, err
	}
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("update doctor: %w", err)
	}
	s.logger.Info().Str("hospital", hospital).Int64("doctor_id", id).Msg("doctor updated")
	return d, nil
}

// DeleteDoctor removes the doctor. Appointment history is left in place.
func (s *Service) DeleteDoctor(ctx context.Context, hospital string, id int64) error {
	if _, err := s.GetOwnedDoctor(ctx, hospital, id); err != nil {
		return err
	}
	if err := s.doctors.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("hospital", hospital).Int64("doctor_id", id).Msg("doctor deleted")
	return nil
}

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.HospitalName == "" {
		d.HospitalName = d.HospitalUsername
	}
	return d, nil
}

// GetOwnedDoctor returns the doctor only if hospital owns it.
func (s *Service) GetOwnedDoctor(ctx context.Context, hospital string, id int64) (*Doctor, error) {
	d, err := s.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.HospitalUsername != hospital {
		return nil, ErrNotOwner
	}
	return d, nil
}

func (s *Service) ListDoctorsByHospital(ctx context.Context, username string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.ListByHospital(ctx, username, limit, offset)
}

// Directory lists the hospitals patients can see with their doctors. A
// non-empty query (case-insensitive substring) keeps the doctors whose name or
// specialization matches, or every doctor of a hospital whose name matches.
// Hospitals left without doctors are omitted.
func (s *Service) Directory(ctx context.Context, query string) ([]*DirectoryEntry, error) {
	hospitals, err := s.hospitals.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}

	var listed []*Hospital
	var usernames []string
	for _, h := range hospitals {
		if h.Listed() {
			listed = append(listed, h)
			usernames = append(usernames, h.Username)
		}
	}

	doctors, err := s.doctors.ListByHospitals(ctx, usernames)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	byHospital := make(map[string][]*Doctor, len(listed))
	for _, d := range doctors {
		byHospital[d.HospitalUsername] = append(byHospital[d.HospitalUsername], d)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	entries := []*DirectoryEntry{}
	for _, h := range listed {
		docs := byHospital[h.Username]
		if q != "" && !strings.Contains(strings.ToLower(h.Name), q) {
			var kept []*Doctor
			for _, d := range docs {
				if d.matches(q) {
					kept = append(kept, d)
				}
			}
			docs = kept
		}
		if len(docs) == 0 {
			continue
		}
		entries = append(entries, &DirectoryEntry{Hospital: h, Doctors: docs})
	}
	return entries, nil
}

// ClearExpiredLeave drops emergency-leave markers dated before today
// (YYYY-MM-DD).
func (s *Service) ClearExpiredLeave(ctx context.Context, today string) (int64, error) {
	n, err := s.doctors.ClearLeaveBefore(ctx, today)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("doctors", n).Str("before", today).Msg("expired emergency leave cleared")
	}
	return n, nil
}

// IsNotFound reports whether err means the hospital or doctor does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDoctorNotFound) || errors.Is(err, ErrHospitalNotFound)
}
