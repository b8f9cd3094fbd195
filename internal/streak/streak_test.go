package streak

import (
	"testing"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func goodHabit(created time.Time) models.Habit {
	return models.Habit{ID: "h1", Name: "Water", Type: constants.HabitGood, CreatedAt: created}
}

func badHabit(created time.Time) models.Habit {
	return models.Habit{ID: "h1", Name: "Smoking", Type: constants.HabitBad, CreatedAt: created}
}

func log(day string, completed bool) models.HabitLog {
	return models.HabitLog{ID: "l-" + day, HabitID: "h1", Date: day, Completed: completed}
}

func TestCurrent_NoLogs(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))

	if got := Current(habit, nil, date(2024, 1, 10)); got != 0 {
		t.Errorf("habit with zero logs should have streak 0, got %d", got)
	}
}

func TestCurrent_UnloggedTodayDoesNotBreak(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		log("2024-01-03", true),
		log("2024-01-04", true),
	}

	// Today (01-05) has no log yet; the streak should still read 2.
	if got := Current(habit, logs, date(2024, 1, 5)); got != 2 {
		t.Errorf("expected streak 2, got %d", got)
	}
}

func TestCurrent_TodayLogCounts(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		log("2024-01-04", true),
		log("2024-01-05", true),
	}

	if got := Current(habit, logs, date(2024, 1, 5)); got != 2 {
		t.Errorf("expected streak 2 including today, got %d", got)
	}
}

func TestCurrent_FailureBreaks(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		log("2024-01-03", true),
		log("2024-01-04", false),
		log("2024-01-05", true),
	}

	if got := Current(habit, logs, date(2024, 1, 5)); got != 1 {
		t.Errorf("failure on 01-04 should cap streak at 1, got %d", got)
	}
}

func TestCurrent_MissingExpectedDayBreaks(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		log("2024-01-02", true),
		// 01-03 missing
		log("2024-01-04", true),
	}

	if got := Current(habit, logs, date(2024, 1, 5)); got != 1 {
		t.Errorf("gap on 01-03 should cap streak at 1, got %d", got)
	}
}

func TestCurrent_BadHabitPolarity(t *testing.T) {
	// Bad habit indulged on 01-02 with today 01-03 unlogged.
	habit := badHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		log("2024-01-02", true), // indulged = failure for a bad habit
	}

	if got := Current(habit, logs, date(2024, 1, 3)); got != 0 {
		t.Errorf("indulged bad habit yesterday should give streak 0, got %d", got)
	}
}

func TestCurrent_BadHabitResistedCounts(t *testing.T) {
	habit := badHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		log("2024-01-01", false),
		log("2024-01-02", false), // resisted = success
	}

	if got := Current(habit, logs, date(2024, 1, 3)); got != 2 {
		t.Errorf("resisted bad habit should give streak 2, got %d", got)
	}
}

func TestCurrent_PolarityInversion(t *testing.T) {
	// Same log shape, opposite habit types, opposite outcomes.
	logs := []models.HabitLog{log("2024-01-02", false)}
	now := date(2024, 1, 3)

	if got := Current(goodHabit(date(2024, 1, 1)), logs, now); got != 0 {
		t.Errorf("good habit with completed=false should have streak 0, got %d", got)
	}
	if got := Current(badHabit(date(2024, 1, 1)), logs, now); got != 1 {
		t.Errorf("bad habit with completed=false should have streak 1, got %d", got)
	}
}

func TestCurrent_IntervalSkipsNonExpectedDays(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	habit.Schedule = &models.Schedule{Type: constants.ScheduleInterval, IntervalDays: 2}
	logs := []models.HabitLog{
		log("2024-01-01", true),
		log("2024-01-03", true),
	}

	// 01-02 and 01-04 are not expected; walking back from 01-04 the
	// streak should count both expected-day successes.
	if got := Current(habit, logs, date(2024, 1, 4)); got != 2 {
		t.Errorf("expected streak 2 across non-expected gaps, got %d", got)
	}
}

func TestCompute_Aggregates(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		log("2024-01-01", true),
		log("2024-01-02", false),
		log("2024-01-03", true),
		log("2024-01-04", true),
	}

	stats := Compute(habit, logs, date(2024, 1, 4))

	if stats.TotalDays != 4 {
		t.Errorf("TotalDays = %d, want 4", stats.TotalDays)
	}
	if stats.TotalCompletions != 3 {
		t.Errorf("TotalCompletions = %d, want 3", stats.TotalCompletions)
	}
	if stats.CompletionRate != 75 {
		t.Errorf("CompletionRate = %v, want 75", stats.CompletionRate)
	}
	if stats.CurrentStreak != 2 {
		t.Errorf("CurrentStreak = %d, want 2", stats.CurrentStreak)
	}
	if stats.LongestStreak != 2 {
		t.Errorf("LongestStreak = %d, want 2", stats.LongestStreak)
	}
}

func TestCompute_LongestStreakResetOnGap(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		log("2024-01-01", true),
		log("2024-01-02", true),
		log("2024-01-03", true),
		// 01-04 and 01-05 expected but unlogged, run broken
		log("2024-01-06", true),
		log("2024-01-07", true),
	}

	stats := Compute(habit, logs, date(2024, 1, 8))
	if stats.LongestStreak != 3 {
		t.Errorf("LongestStreak = %d, want 3 (gap must reset the run)", stats.LongestStreak)
	}
}

func TestCompute_LongestStreakIgnoresNonExpectedGaps(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	habit.Schedule = &models.Schedule{Type: constants.ScheduleInterval, IntervalDays: 2}
	logs := []models.HabitLog{
		log("2024-01-01", true),
		log("2024-01-03", true),
		log("2024-01-05", true),
	}

	stats := Compute(habit, logs, date(2024, 1, 5))
	if stats.LongestStreak != 3 {
		t.Errorf("LongestStreak = %d, want 3 (non-expected days between logs are not gaps)", stats.LongestStreak)
	}
}

func TestCompute_IgnoresOtherHabitsLogs(t *testing.T) {
	habit := goodHabit(date(2024, 1, 1))
	logs := []models.HabitLog{
		{ID: "x", HabitID: "other", Date: "2024-01-03", Completed: true},
		log("2024-01-03", true),
	}

	stats := Compute(habit, logs, date(2024, 1, 4))
	if stats.TotalDays != 1 {
		t.Errorf("TotalDays = %d, want 1 (foreign logs must be filtered)", stats.TotalDays)
	}
}
