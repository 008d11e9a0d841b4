package roster

import "errors"

var (
	ErrHospitalNotFound = errors.New("hospital not found")
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrNotOwner         = errors.New("doctor belongs to another hospital")
	ErrInvalidDoctor    = errors.New("invalid doctor")
	ErrInvalidHoliday   = errors.New("invalid weekly holiday")
	ErrInvalidHospital  = errors.New("invalid hospital profile")
)
