package utils

import (
	"fmt"
	"math"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
)

// FormatLocalDate returns the YYYY-MM-DD date string for t in its own location.
func FormatLocalDate(t time.Time) string {
	return t.Format(constants.DateFormat)
}

// Truncate returns t at local midnight, preserving its location.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from a to b, rounding
// to absorb DST offsets. Negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	diff := Truncate(b).Sub(Truncate(a))
	return int(math.Round(diff.Hours() / 24))
}

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// NowInTimezone returns the current time in the specified timezone.
func NowInTimezone(timezone string) (time.Time, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return time.Now().In(loc), nil
}

// ParseDateInLocation parses a date string (YYYY-MM-DD) as midnight in
// the specified timezone.
func ParseDateInLocation(dateStr string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(constants.DateFormat, dateStr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// ValidateDateFormat checks if the string matches the standard date format.
func ValidateDateFormat(dateStr string) bool {
	if len(dateStr) != len(constants.DateFormat) {
		return false
	}
	_, err := time.Parse(constants.DateFormat, dateStr)
	return err == nil
}

// ValidateTimeFormat checks if the string matches the standard time format.
func ValidateTimeFormat(timeStr string) bool {
	if len(timeStr) != len(constants.TimeFormat) {
		return false
	}
	_, err := time.Parse(constants.TimeFormat, timeStr)
	return err == nil
}
