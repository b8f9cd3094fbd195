// Package validation schema-checks a migrated export bundle before it is
// persisted or merged. Errors are collected, not short-circuited, so the
// user sees every problem with an import at once.
package validation

import (
	"fmt"
	"strings"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/utils"
)

// Error is a single field-level validation failure.
type Error struct {
	Field   string
	Message string
}

func (e Error) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result contains all detected validation errors for one bundle.
type Result struct {
	Errors []Error
}

// Valid returns true if no errors were detected.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Messages returns the human-readable error list for display.
func (r Result) Messages() []string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.String()
	}
	return msgs
}

// FormatReport returns a human-readable report of all errors.
func (r Result) FormatReport() string {
	if r.Valid() {
		return "Bundle is valid."
	}
	var b strings.Builder
	b.WriteString("Invalid bundle:\n")
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "- %s\n", e.String())
	}
	return b.String()
}

func (r *Result) addf(field, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Error{Field: field, Message: fmt.Sprintf(format, args...)})
}

var languages = map[string]bool{"en": true, "id": true}
var personalities = map[string]bool{"positive": true, "adaptive": true, "harsh": true}

// ValidateBundle checks a migrated bundle against the current schema.
func ValidateBundle(b models.ExportBundle) Result {
	var r Result

	if b.Version != constants.BundleVersion {
		r.addf("version", "unsupported bundle version %q (want %q)", b.Version, constants.BundleVersion)
	}
	if b.Meta.Counts.Habits < 0 || b.Meta.Counts.Logs < 0 {
		r.addf("meta.counts", "counts must be non-negative")
	}

	habitIDs := make(map[string]bool)
	for i, h := range b.Habits {
		field := fmt.Sprintf("habits[%d]", i)
		if h.ID == "" {
			r.addf(field+".id", "habit id is required")
		} else if habitIDs[h.ID] {
			r.addf(field+".id", "duplicate habit id %q", h.ID)
		}
		habitIDs[h.ID] = true

		if h.Name == "" {
			r.addf(field+".name", "habit name is required")
		}
		if h.Type != constants.HabitGood && h.Type != constants.HabitBad {
			r.addf(field+".type", "habit type must be %q or %q, got %q", constants.HabitGood, constants.HabitBad, h.Type)
		}
		if h.CreatedAt.IsZero() {
			r.addf(field+".createdAt", "createdAt is required")
		}
		validateSchedule(&r, field+".schedule", h.Schedule)
	}

	logPairs := make(map[string]bool)
	logIDs := make(map[string]bool)
	for i, l := range b.Logs {
		field := fmt.Sprintf("logs[%d]", i)
		if l.ID == "" {
			r.addf(field+".id", "log id is required")
		} else if logIDs[l.ID] {
			r.addf(field+".id", "duplicate log id %q", l.ID)
		}
		logIDs[l.ID] = true

		if l.HabitID == "" {
			r.addf(field+".habitId", "log habitId is required")
		}
		if !utils.ValidateDateFormat(l.Date) {
			r.addf(field+".date", "invalid date %q (want YYYY-MM-DD)", l.Date)
		}
		if l.Source != "" && l.Source != constants.SourceManual && l.Source != constants.SourceAuto {
			r.addf(field+".source", "log source must be %q or %q, got %q", constants.SourceManual, constants.SourceAuto, l.Source)
		}
		if l.Timestamp.IsZero() {
			r.addf(field+".timestamp", "timestamp is required")
		}

		pair := l.HabitID + "::" + l.Date
		if l.HabitID != "" && logPairs[pair] {
			r.addf(field, "duplicate log for habit %q on %s", l.HabitID, l.Date)
		}
		logPairs[pair] = true
	}

	validateSettings(&r, b.Settings)

	return r
}

func validateSchedule(r *Result, field string, s *models.Schedule) {
	if s == nil {
		return
	}
	switch s.Type {
	case constants.ScheduleDaily, constants.ScheduleInterval, constants.ScheduleWeekly:
	default:
		r.addf(field+".type", "unknown schedule type %q", s.Type)
	}
	for _, d := range s.DaysOfWeek {
		if d < 0 || d > 6 {
			r.addf(field+".daysOfWeek", "weekday %d out of range 0-6", d)
		}
	}
	if s.IntervalDays < 0 {
		r.addf(field+".intervalDays", "intervalDays must not be negative")
	}
}

func validateSettings(r *Result, s models.Settings) {
	if s.Language != "" && !languages[s.Language] {
		r.addf("settings.language", "unsupported language %q", s.Language)
	}
	if s.MotivatorPersonality != "" && !personalities[s.MotivatorPersonality] {
		r.addf("settings.motivatorPersonality", "unsupported personality %q", s.MotivatorPersonality)
	}
	if s.ReminderTime != nil && *s.ReminderTime != "" && !utils.ValidateTimeFormat(*s.ReminderTime) {
		r.addf("settings.reminderTime", "invalid reminder time %q (want HH:MM)", *s.ReminderTime)
	}
}
