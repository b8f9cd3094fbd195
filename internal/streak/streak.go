// Package streak computes current and longest streaks for a habit from
// its log history. Pure: the caller injects "now" so nothing here reads
// the clock.
//
// Streaks are schedule-aware. The backward walk only inspects expected
// dates: a Tuesday gap in a Mon/Wed weekly habit does not break the
// run, while a missing expected date does. An unlogged "today" is
// skipped rather than counted as a break (grace period).
package streak

import (
	"sort"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/schedule"
	"github.com/julianstephens/habitloop/internal/utils"
)

// Stats aggregates everything the stats views need for one habit.
type Stats struct {
	TotalDays        int
	CompletedDays    int
	TotalCompletions int
	CompletionRate   float64
	CurrentStreak    int
	LongestStreak    int
}

// Current returns the habit's current streak. Only logs belonging to the
// habit are considered; order is irrelevant. A habit with zero logs has
// streak 0.
func Current(habit models.Habit, logs []models.HabitLog, now time.Time) int {
	logMap := make(map[string]models.HabitLog)
	for _, log := range logs {
		if log.HabitID == habit.ID {
			logMap[log.Date] = log
		}
	}
	if len(logMap) == 0 {
		return 0
	}

	today := utils.Truncate(now)
	todayStr := utils.FormatLocalDate(today)

	count := 0
	for i := 0; i <= constants.StreakWalkLimit; i++ {
		checkDate := today.AddDate(0, 0, -i)
		checkStr := utils.FormatLocalDate(checkDate)

		// Non-expected dates neither extend nor break the streak.
		if !schedule.IsExpectedDate(habit, checkDate) {
			continue
		}

		log, ok := logMap[checkStr]
		if !ok {
			if checkStr == todayStr {
				continue // grace period: today may still be logged
			}
			break // missing expected date
		}
		if !log.IsSuccess(habit.Type) {
			break
		}
		count++
	}

	return count
}

// Compute returns full stats for the habit: current streak, longest
// streak, and completion aggregates over its whole log history.
func Compute(habit models.Habit, logs []models.HabitLog, now time.Time) Stats {
	var own []models.HabitLog
	for _, log := range logs {
		if log.HabitID == habit.ID {
			own = append(own, log)
		}
	}

	successes := 0
	for _, log := range own {
		if log.IsSuccess(habit.Type) {
			successes++
		}
	}

	stats := Stats{
		TotalDays:        len(own),
		CompletedDays:    successes,
		TotalCompletions: successes,
		CurrentStreak:    Current(habit, own, now),
		LongestStreak:    longest(habit, own),
	}
	if len(own) > 0 {
		stats.CompletionRate = float64(successes) / float64(len(own)) * 100
	}
	return stats
}

// longest scans logs on expected dates in ascending date order. A run
// continues only when no expected date between two consecutive success
// logs went unlogged.
func longest(habit models.Habit, own []models.HabitLog) int {
	loc := habit.CreatedAt.Location()

	var sorted []models.HabitLog
	for _, log := range own {
		d, err := utils.ParseDateInLocation(log.Date, loc)
		if err != nil {
			continue
		}
		if schedule.IsExpectedDate(habit, d) {
			sorted = append(sorted, log)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	best := 0
	run := 0
	for i, log := range sorted {
		if !log.IsSuccess(habit.Type) {
			run = 0
			continue
		}

		if run > 0 && i > 0 {
			prev, errP := utils.ParseDateInLocation(sorted[i-1].Date, loc)
			curr, errC := utils.ParseDateInLocation(log.Date, loc)
			if errP == nil && errC == nil && missedExpectedBetween(habit, prev, curr) {
				run = 1
			} else {
				run++
			}
		} else {
			run = 1
		}

		if run > best {
			best = run
		}
	}

	return best
}

// missedExpectedBetween reports whether any expected date falls strictly
// between prev and curr.
func missedExpectedBetween(habit models.Habit, prev, curr time.Time) bool {
	from := prev.AddDate(0, 0, 1)
	to := curr.AddDate(0, 0, -1)
	if from.After(to) {
		return false
	}
	return len(schedule.ExpectedDates(habit, from, to)) > 0
}
