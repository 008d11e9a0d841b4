package roster

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the calendar-date format used at every boundary.
const DateLayout = "2006-01-02"

// NotSetLocation is the placeholder location of a freshly registered hospital.
const NotSetLocation = "Not Set"

// DefaultDailyCap applies when neither the request nor configuration sets a cap.
const DefaultDailyCap = 3

type Hospital struct {
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Listed reports whether patients can see the hospital: its profile must have
// been filled in beyond the registration placeholders.
func (h *Hospital) Listed() bool {
	name := strings.TrimSpace(h.Name)
	loc := strings.TrimSpace(h.Location)
	return name != "" && name != h.Username && loc != "" && loc != NotSetLocation
}

type HospitalInput struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// EmergencyLeave marks a single date off. Session is a caller-defined label
// such as "morning" or "full day".
type EmergencyLeave struct {
	Date    string `json:"date"`
	Session string `json:"session"`
}

type Doctor struct {
	ID               int64           `json:"id"`
	HospitalUsername string          `json:"hospital_username"`
	HospitalName     string          `json:"hospital_name,omitempty"`
	Name             string          `json:"name"`
	Specialization   string          `json:"specialization"`
	Education        string          `json:"education"`
	Timings          string          `json:"timings"`
	WeeklyHolidays   []string        `json:"weekly_holidays"`
	EmergencyLeave   *EmergencyLeave `json:"emergency_leave,omitempty"`
	DailyCap         int             `json:"daily_cap"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasWeeklyHoliday reports whether day is one of the doctor's weekly holidays.
func (d *Doctor) HasWeeklyHoliday(day time.Weekday) bool {
	for _, h := range d.WeeklyHolidays {
		if strings.EqualFold(h, day.String()) {
			return true
		}
	}
	return false
}

// OnLeave reports whether the emergency-leave marker falls on date (YYYY-MM-DD).
func (d *Doctor) OnLeave(date string) bool {
	return d.EmergencyLeave != nil && d.EmergencyLeave.Date == date
}

// DoctorInput is the staff-facing doctor form. WeeklyHolidays is free text
// such as "Sunday, Wednesday".
type DoctorInput struct {
	Name                  string `json:"name"`
	Specialization        string `json:"specialization"`
	Education             string `json:"education"`
	Timings               string `json:"timings"`
	WeeklyHolidays        string `json:"weekly_holidays"`
	EmergencyLeaveDate    string `json:"emergency_leave_date"`
	EmergencyLeaveSession string `json:"emergency_leave_session"`
	DailyCap              *int   `json:"daily_cap"`
}

// apply validates in and copies it onto d. A nil DailyCap leaves d.DailyCap
// untouched.
func (in DoctorInput) apply(d *Doctor) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDoctor)
	}

	holidays, err := ParseWeeklyHolidays(in.WeeklyHolidays)
	if err != nil {
		return err
	}

	var leave *EmergencyLeave
	date := strings.TrimSpace(in.EmergencyLeaveDate)
	session := strings.TrimSpace(in.EmergencyLeaveSession)
	switch {
	case date != "" && session != "":
		if _, err := time.Parse(DateLayout, date); err != nil {
			return fmt.Errorf("%w: emergency_leave_date must be YYYY-MM-DD", ErrInvalidDoctor)
		}
		leave = &EmergencyLeave{Date: date, Session: session}
	case date != "" || session != "":
		return fmt.Errorf("%w: emergency leave needs both a date and a session", ErrInvalidDoctor)
	}

	if in.DailyCap != nil {
		if *in.DailyCap < 1 {
			return fmt.Errorf("%w: daily_cap must be at least 1", ErrInvalidDoctor)
		}
		d.DailyCap = *in.DailyCap
	}

	d.Name = name
	d.Specialization = strings.TrimSpace(in.Specialization)
	d.Education = strings.TrimSpace(in.Education)
	d.Timings = strings.TrimSpace(in.Timings)
	d.WeeklyHolidays = holidays
	d.EmergencyLeave = leave
	return nil
}

// DirectoryEntry is one listed hospital with the doctors shown to patients.
type DirectoryEntry struct {
	Hospital *Hospital `json:"hospital"`
	Doctors  []*Doctor `json:"doctors"`
}

var weekdayNames = map[string]time.Weekday{}

func init() {
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		weekdayNames[full] = d
		weekdayNames[full[:3]] = d
	}
}

// ParseWeeklyHolidays turns free text like "Sunday, wed" into canonical
// weekday names ordered Sunday first. Tokens may be separated by commas,
// semicolons, slashes, whitespace or the word "and". "none" and empty text
// mean no holidays; any other unknown token is an error.
func ParseWeeklyHolidays(text string) ([]string, error) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ',' || r == ';' || r == '/' || r == '&' || unicode.IsSpace(r)
	})

	var seen [7]bool
	for _, tok := range tokens {
		if tok == "and" || tok == "none" || tok == "-" {
			continue
		}
		day, ok := weekdayNames[tok]
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a weekday", ErrInvalidHoliday, tok)
		}
		seen[day] = true
	}

	holidays := []string{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if seen[d] {
			holidays = append(holidays, d.String())
		}
	}
	return holidays, nil
}

// matches reports whether d should be listed for the lower-cased query.
func (d *Doctor) matches(query string) bool {
	return strings.Contains(strings.ToLower(d.Name), query) ||
		strings.Contains(strings.ToLower(d.Specialization), query)
}
