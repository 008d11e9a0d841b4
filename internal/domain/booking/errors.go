package booking

import (
	"errors"
	"fmt"

	"github.com/carebook/carebook/internal/domain/roster"
)

var (
	ErrInvalidPatientName = errors.New("patient name must be at least 2 characters")
	ErrInvalidPhone       = errors.New("phone number must be exactly 10 digits")
	ErrInvalidDate        = errors.New("appointment date must be YYYY-MM-DD")
	ErrDoctorNotFound     = roster.ErrDoctorNotFound
	ErrDoctorUnavailable  = errors.New("doctor is unavailable today")
	ErrCapacityExceeded   = errors.New("daily appointment limit reached")
	ErrNotFound           = errors.New("appointment not found")
	ErrUnauthorized       = errors.New("phone number does not match the appointment")
	ErrAlreadyConfirmed   = errors.New("appointment already confirmed")
	ErrStorageFailure     = errors.New("storage failure")
)

// UnavailableError reports why a doctor cannot take bookings today.
type UnavailableError struct {
	Reason Reason
	Detail string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrDoctorUnavailable, e.Reason, e.Detail)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrDoctorUnavailable }

// CapacityError reports the cap that was reached.
type CapacityError struct {
	Cap int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: maximum %d appointments per day", ErrCapacityExceeded, e.Cap)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// KindOf names the error kind of err, "StorageFailure" for anything that is
// not a booking error.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPatientName):
		return "InvalidPatientName"
	case errors.Is(err, ErrInvalidPhone):
		return "InvalidPhone"
	case errors.Is(err, ErrInvalidDate):
		return "InvalidDate"
	case errors.Is(err, ErrDoctorNotFound):
		return "DoctorNotFound"
	case errors.Is(err, ErrDoctorUnavailable):
		return "DoctorUnavailable"
	case errors.Is(err, ErrCapacityExceeded):
		return "CapacityExceeded"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrAlreadyConfirmed):
		return "AlreadyConfirmed"
	default:
		return "StorageFailure"
	}
}

// storageFailure wraps a persistence error so callers can match
// ErrStorageFailure while logs keep the cause.
func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

// isDomainError reports whether err already carries a booking kind and must
// not be wrapped as a storage failure.
func isDomainError(err error) bool {
	return KindOf(err) != "StorageFailure"
}
