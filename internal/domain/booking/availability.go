package booking

import (
	"strings"
	"time"
	"unicode"

	"github.com/carebook/carebook/internal/domain/roster"
)

type Reason string

const (
	ReasonNone           Reason = "none"
	ReasonWeeklyHoliday  Reason = "weekly_holiday"
	ReasonEmergencyLeave Reason = "emergency_leave"
)

type Availability struct {
	Available bool   `json:"available"`
	Reason    Reason `json:"reason"`
	Detail    string `json:"detail,omitempty"`
}

// Evaluate decides whether d takes bookings on today. Weekly holidays win
// over emergency leave. The requested booking date plays no part.
func Evaluate(d *roster.Doctor, today time.Time) Availability {
	if d.HasWeeklyHoliday(today.Weekday()) {
		return Availability{Reason: ReasonWeeklyHoliday, Detail: today.Weekday().String()}
	}
	if d.OnLeave(today.Format(roster.DateLayout)) {
		return Availability{Reason: ReasonEmergencyLeave, Detail: d.EmergencyLeave.Session}
	}
	return Availability{Available: true, Reason: ReasonNone}
}

// morningCutoff is the local hour from which the booking form defaults to
// tomorrow.
const morningCutoff = 9

// DefaultBookingDate is the date the booking form starts with: today before
// 09:00 local time, tomorrow after.
func DefaultBookingDate(now time.Time) string {
	if now.Hour() >= morningCutoff {
		now = now.AddDate(0, 0, 1)
	}
	return now.Format(roster.DateLayout)
}

// phoneDigits strips everything but ASCII digits.
func phoneDigits(raw string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
}

// NormalizePhone returns the 10-digit key used to match a patient to their
// appointments. "98765-43210" and "(987) 654-3210" share a key.
func NormalizePhone(raw string) (string, error) {
	key := phoneDigits(raw)
	if len(key) != 10 {
		return "", ErrInvalidPhone
	}
	return key, nil
}
