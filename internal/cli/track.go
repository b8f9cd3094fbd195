package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/streak"
	"github.com/julianstephens/habitloop/internal/utils"
)

type TrackCmd struct {
	Habit string `arg:"" help:"Habit ID or name."`
	Date  string `help:"Date to log (YYYY-MM-DD), defaults to today."`
	Miss  bool   `help:"Record the day as missed instead of done."`
}

func (c *TrackCmd) Run(ctx *Context) error {
	habit, err := findHabit(ctx, c.Habit)
	if err != nil {
		return err
	}

	now := time.Now()
	date := c.Date
	if date == "" {
		date = utils.FormatLocalDate(now)
	} else if !utils.ValidateDateFormat(date) {
		return fmt.Errorf("invalid date format %q, expected YYYY-MM-DD", date)
	}

	log := models.HabitLog{
		ID:        uuid.NewString(),
		HabitID:   habit.ID,
		Date:      date,
		Completed: !c.Miss,
		Timestamp: now,
		Source:    constants.SourceManual,
		UpdatedAt: &now,
		Version:   1,
	}
	if ctx.DeviceID != "" {
		log.DeviceID = &ctx.DeviceID
	}

	// One log per habit per day: tracking again replaces the entry.
	if err := ctx.Store.UpsertLog(log); err != nil {
		return fmt.Errorf("failed to record log: %w", err)
	}

	if err := refreshHabitStreak(ctx, habit, now); err != nil {
		return err
	}
	ctx.MarkDirty()

	verb := "Tracked"
	if c.Miss {
		verb = "Marked missed"
	}
	fmt.Printf("%s %s for %s\n", successStyle.Render(verb), habit.Name, date)
	return nil
}

type UndoCmd struct {
	Habit string `arg:"" help:"Habit ID or name."`
	Date  string `help:"Date to clear (YYYY-MM-DD), defaults to today."`
}

func (c *UndoCmd) Run(ctx *Context) error {
	habit, err := findHabit(ctx, c.Habit)
	if err != nil {
		return err
	}

	now := time.Now()
	date := c.Date
	if date == "" {
		date = utils.FormatLocalDate(now)
	} else if !utils.ValidateDateFormat(date) {
		return fmt.Errorf("invalid date format %q, expected YYYY-MM-DD", date)
	}

	if err := ctx.Store.DeleteLog(habit.ID, date); err != nil {
		return fmt.Errorf("failed to clear log: %w", err)
	}

	if err := refreshHabitStreak(ctx, habit, now); err != nil {
		return err
	}
	ctx.MarkDirty()

	fmt.Printf("Cleared %s for %s\n", habit.Name, date)
	return nil
}

// refreshHabitStreak recomputes the denormalized streak and last
// completion after a log mutation. Habits are re-read first so a
// stale copy never clobbers concurrent edits.
func refreshHabitStreak(ctx *Context, habit models.Habit, now time.Time) error {
	habit, err := ctx.Store.GetHabit(habit.ID)
	if err != nil {
		return err
	}
	logs, err := ctx.Store.GetLogsForHabit(habit.ID)
	if err != nil {
		return err
	}

	habit.Streak = streak.Current(habit, logs, now)
	habit.LastCompletedDate = lastSuccess(habit, logs)
	ctx.StampUpdate(&habit, now)

	if err := ctx.Store.UpdateHabit(habit); err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	return nil
}

func lastSuccess(habit models.Habit, logs []models.HabitLog) *time.Time {
	var latest *time.Time
	for _, log := range logs {
		if !log.IsSuccess(habit.Type) {
			continue
		}
		day, err := utils.ParseDateInLocation(log.Date, time.Local)
		if err != nil {
			continue
		}
		if latest == nil || day.After(*latest) {
			d := day
			latest = &d
		}
	}
	return latest
}
