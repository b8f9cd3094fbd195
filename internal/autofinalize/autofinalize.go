// Package autofinalize synthesizes missed-day logs for calendar days that
// passed without a manual entry.
//
// For every habit it walks from the habit's CreatedAt up to, but never
// including, today: a missed good habit is recorded as completed=false,
// a missed bad habit as completed=true (assumed indulged, since absence
// of a resistance record defaults to failure). Today is never finalized;
// the user has until day's end to log manually.
//
// ComputeAutoLogs is pure and idempotent: it never touches storage, reads
// the clock exactly once per invocation through the injected now, and
// feeding its output back in as existing logs produces nothing new.
package autofinalize

import (
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/schedule"
	"github.com/julianstephens/habitloop/internal/utils"
)

// ComputeAutoLogs returns the auto-generated logs that should be
// persisted for every expected-but-unlogged day strictly before today.
// The caller persists the result and re-runs streak calculation for the
// affected habits.
func ComputeAutoLogs(habits []models.Habit, existingLogs []models.HabitLog, now time.Time) []models.HabitLog {
	todayStr := utils.FormatLocalDate(now)

	// habitID -> set of already-logged date strings
	loggedDates := make(map[string]map[string]bool)
	for _, log := range existingLogs {
		set := loggedDates[log.HabitID]
		if set == nil {
			set = make(map[string]bool)
			loggedDates[log.HabitID] = set
		}
		set[log.Date] = true
	}

	var newLogs []models.HabitLog
	// Guards against duplicate (habitId, date) pairs within one invocation.
	emitted := make(map[string]bool)

	for _, habit := range habits {
		existing := loggedDates[habit.ID]

		cursor := utils.Truncate(habit.CreatedAt)
		for {
			dateStr := utils.FormatLocalDate(cursor)
			if dateStr >= todayStr {
				break // grace period: never finalize today
			}

			emitKey := habit.ID + "::" + dateStr
			if !existing[dateStr] && !emitted[emitKey] && schedule.IsExpectedDate(habit, cursor) {
				// Good habit missed -> completed: false
				// Bad habit missed  -> completed: true (indulged / not resisted)
				completed := habit.Type == constants.HabitBad

				endOfDay := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 23, 59, 59, 0, cursor.Location())
				newLogs = append(newLogs, models.HabitLog{
					ID:        uuid.NewString(),
					HabitID:   habit.ID,
					Date:      dateStr,
					Completed: completed,
					Timestamp: endOfDay,
					Source:    constants.SourceAuto,
				})
				emitted[emitKey] = true
			}

			cursor = cursor.AddDate(0, 0, 1)
		}
	}

	// Final safety: strip any log that somehow targets today.
	filtered := newLogs[:0]
	for _, log := range newLogs {
		if log.Date != todayStr {
			filtered = append(filtered, log)
		}
	}
	return filtered
}
