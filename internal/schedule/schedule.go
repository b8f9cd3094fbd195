// Package schedule decides which calendar dates a habit expects tracking
// on. All functions are pure: no storage access, no clock reads. Interval
// schedules count from the habit's CreatedAt; weekly schedules match on
// the weekday (0=Sunday), an empty day list meaning every day.
package schedule

import (
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/utils"
)

// IsExpectedDate checks whether the given date is an "expected" tracking
// day for the habit. The time portion of date is ignored. An unknown
// schedule type falls back to daily; that is a documented fallback, not
// an error.
func IsExpectedDate(habit models.Habit, date time.Time) bool {
	sched := habit.EffectiveSchedule()

	switch sched.Type {
	case constants.ScheduleDaily:
		return true

	case constants.ScheduleInterval:
		intervalDays := sched.IntervalDays
		if intervalDays == 0 {
			intervalDays = constants.DefaultIntervalDays
		}
		// CreatedAt may carry a foreign offset (imported bundles store
		// UTC); reckon its calendar day in the query date's location.
		created := habit.CreatedAt.In(date.Location())
		diffDays := utils.DaysBetween(created, date)
		// Expected on day 0, intervalDays, 2*intervalDays, etc.
		return diffDays >= 0 && diffDays%intervalDays == 0

	case constants.ScheduleWeekly:
		if len(sched.DaysOfWeek) == 0 {
			return true // no days selected = every day
		}
		wd := int(date.Weekday())
		for _, d := range sched.DaysOfWeek {
			if d == wd {
				return true
			}
		}
		return false

	default:
		return true
	}
}

// ExpectedDates returns every expected date for the habit within the
// inclusive range [from, to], each at local midnight.
func ExpectedDates(habit models.Habit, from, to time.Time) []time.Time {
	var results []time.Time

	cursor := utils.Truncate(from)
	end := utils.Truncate(to)

	for !cursor.After(end) {
		if IsExpectedDate(habit, cursor) {
			results = append(results, cursor)
		}
		cursor = cursor.AddDate(0, 0, 1)
	}

	return results
}
