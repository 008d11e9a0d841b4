package roster

import "context"

// HospitalRepository defines the persistence interface for hospital profiles.
type HospitalRepository interface {
	Upsert(ctx context.Context, h *Hospital) error
	// EnsureExists creates a placeholder profile (name = username, location
	// "Not Set") unless one exists.
	EnsureExists(ctx context.Context, username string) error
	GetByUsername(ctx context.Context, username string) (*Hospital, error)
	List(ctx context.Context) ([]*Hospital, error)
}

// DoctorRepository defines the persistence interface for doctors.
type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	ListByHospital(ctx context.Context, username string, limit, offset int) ([]*Doctor, int, error)
	ListByHospitals(ctx context.Context, usernames []string) ([]*Doctor, error)
	// ClearLeaveBefore removes emergency-leave markers dated before day and
	// returns how many doctors changed.
	ClearLeaveBefore(ctx context.Context, day string) (int64, error)
}
