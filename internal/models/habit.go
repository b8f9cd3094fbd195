package models

import (
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
)

// Schedule configures which calendar days a habit expects tracking on.
// A nil Schedule is treated as daily.
type Schedule struct {
	Type constants.ScheduleType `json:"type"`
	// IntervalDays applies to interval schedules: expected every N days
	// counting from the habit's CreatedAt (day 0, N, 2N, ...).
	IntervalDays int `json:"intervalDays,omitempty"`
	// DaysOfWeek applies to weekly schedules (0=Sunday .. 6=Saturday).
	// An empty list means every day.
	DaysOfWeek []int `json:"daysOfWeek,omitempty"`
}

// Habit represents a recurring practice to track.
//
// Type determines success polarity downstream: for a good habit a
// completed log is a success, for a bad habit a non-completed (resisted)
// log is a success.
type Habit struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Type      constants.HabitType `json:"type"`
	// Streak is the cached current streak; recomputed after every log
	// mutation, never hand-edited outside of restore.
	Streak            int        `json:"streak"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastCompletedDate *time.Time `json:"lastCompletedDate,omitempty"`
	Schedule          *Schedule  `json:"schedule,omitempty"`

	// Sync metadata, consumed only by the merge engine.
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	DeviceID  *string    `json:"deviceId,omitempty"`
	Version   int        `json:"version,omitempty"`
}

// HabitLog represents a single day's record of a habit.
// One log per (HabitID, Date) is the invariant; a new log for the same
// pair replaces the old one.
type HabitLog struct {
	ID      string `json:"id"`
	HabitID string `json:"habitId"`
	// Date is the calendar day in YYYY-MM-DD format, local timezone.
	Date string `json:"date"`
	// Completed means "the tracked action occurred"; polarity is
	// interpreted per habit type for success/failure, not here.
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
	Source    constants.LogSource `json:"source,omitempty"`

	// Sync metadata, consumed only by the merge engine.
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	DeviceID  *string    `json:"deviceId,omitempty"`
	Version   int        `json:"version,omitempty"`
}

// EffectiveSchedule resolves a missing schedule to the daily default.
func (h Habit) EffectiveSchedule() Schedule {
	if h.Schedule == nil {
		return Schedule{Type: constants.ScheduleDaily}
	}
	return *h.Schedule
}

// IsSuccess reports whether the log counts as a successful day for the
// given habit type.
func (l HabitLog) IsSuccess(habitType constants.HabitType) bool {
	if habitType == constants.HabitBad {
		return !l.Completed
	}
	return l.Completed
}
