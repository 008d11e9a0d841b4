package booking

import "time"

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Appointment is immutable once admitted except for Status and UpdatedAt.
// DoctorName and HospitalName are captured at admission so history survives
// roster edits and deletions.
type Appointment struct {
	ID           int64     `json:"id"`
	DoctorID     int64     `json:"doctor_id"`
	DoctorName   string    `json:"doctor_name"`
	HospitalName string    `json:"hospital_name"`
	Date         string    `json:"appointment_date"`
	DaySeq       int       `json:"day_seq"`
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
	PhoneKey     string    `json:"-"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AdmitRequest carries the booking form fields as entered by the patient.
type AdmitRequest struct {
	DoctorID     int64  `json:"doctor_id"`
	Date         string `json:"appointment_date"`
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
}

// Admission is the result of a successful Admit.
type Admission struct {
	AppointmentID int64  `json:"appointment_id"`
	Status        Status `json:"status"`
	DaySeq        int    `json:"day_seq"`
	DoctorName    string `json:"doctor_name"`
	HospitalName  string `json:"hospital_name"`
	Date          string `json:"appointment_date"`
}

// Ack acknowledges a cancel or confirm.
type Ack struct {
	AppointmentID int64  `json:"appointment_id"`
	Status        Status `json:"status"`
}

// Counts are the storage-derived parts of Stats for one doctor on Day. They
// are what the stats cache holds.
type Counts struct {
	Day        string `json:"day"`
	TotalCount int    `json:"total_count"`
	TodayCount int    `json:"today_count"`
	NextIDHint int64  `json:"next_id_hint"`
}

// Stats feeds the booking form. NextIDHint is advisory: it is the number the
// next appointment would get if nobody else books first.
type Stats struct {
	DoctorID     int64        `json:"doctor_id"`
	Date         string       `json:"date"`
	TotalCount   int          `json:"total_count"`
	TodayCount   int          `json:"today_count"`
	Cap          int          `json:"cap"`
	CanBookToday bool         `json:"can_book_today"`
	NextIDHint   int64        `json:"next_id_hint"`
	DefaultDate  string       `json:"default_date"`
	Availability Availability `json:"availability"`
}
