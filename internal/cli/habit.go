package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/schedule"
	"github.com/julianstephens/habitloop/internal/streak"
	"github.com/julianstephens/habitloop/internal/utils"
)

type HabitAddCmd struct {
	Name     string `arg:"" help:"Habit name."`
	Type     string `help:"Habit polarity: good (build) or bad (break)." enum:"good,bad" default:"good"`
	Schedule string `help:"Schedule type." enum:"daily,interval,weekly" default:"daily"`
	Interval int    `help:"Days between expected occurrences for interval schedules." default:"0"`
	Days     string `help:"Comma-separated weekdays for weekly schedules (e.g. mon,wed,fri)."`
}

func (c *HabitAddCmd) Run(ctx *Context) error {
	sched, err := BuildSchedule(c.Schedule, c.Interval, c.Days)
	if err != nil {
		return err
	}

	now := time.Now()
	habit := models.Habit{
		ID:        uuid.NewString(),
		Name:      c.Name,
		Type:      constants.HabitType(c.Type),
		CreatedAt: now,
		Schedule:  sched,
		Version:   1,
	}
	ctx.StampUpdate(&habit, now)

	if err := ctx.Store.AddHabit(habit); err != nil {
		return fmt.Errorf("failed to add habit: %w", err)
	}
	ctx.MarkDirty()

	fmt.Printf("%s %s (%s, %s)\n", successStyle.Render("Added"), habit.Name, habit.Type, FormatSchedule(sched))
	return nil
}

type HabitListCmd struct {
	ShowIDs bool `help:"Show habit IDs." name:"show-ids"`
}

func (c *HabitListCmd) Run(ctx *Context) error {
	habits, err := ctx.Store.GetAllHabits()
	if err != nil {
		return fmt.Errorf("failed to get habits: %w", err)
	}
	if len(habits) == 0 {
		fmt.Println("No habits found")
		return nil
	}

	logs, err := ctx.Store.GetAllLogs()
	if err != nil {
		return fmt.Errorf("failed to get logs: %w", err)
	}

	now := time.Now()
	today := utils.FormatLocalDate(now)

	fmt.Println(titleStyle.Render("Habits:"))
	for _, habit := range habits {
		idStr := ""
		if c.ShowIDs {
			idStr = mutedStyle.Render(fmt.Sprintf(" (%s)", habit.ID))
		}

		marker := " "
		if _, err := ctx.Store.GetLog(habit.ID, today); err == nil {
			marker = successStyle.Render("✓")
		} else if schedule.IsExpectedDate(habit, now) {
			marker = warningStyle.Render("·")
		}

		current := streak.Current(habit, logs, now)
		streakStr := ""
		if current > 0 {
			streakStr = streakStyle.Render(fmt.Sprintf(" 🔥%d", current))
		}

		fmt.Printf("  %s %s%s [%s, %s]%s\n",
			marker, habit.Name, idStr, habit.Type, FormatSchedule(habit.Schedule), streakStr)
	}
	return nil
}

type HabitEditCmd struct {
	Habit    string `arg:"" help:"Habit ID or name."`
	Name     string `help:"New name."`
	Type     string `help:"New polarity." enum:"good,bad,"`
	Schedule string `help:"New schedule type." enum:"daily,interval,weekly,"`
	Interval int    `help:"Days between expected occurrences for interval schedules." default:"0"`
	Days     string `help:"Comma-separated weekdays for weekly schedules."`
}

func (c *HabitEditCmd) Run(ctx *Context) error {
	habit, err := findHabit(ctx, c.Habit)
	if err != nil {
		return err
	}

	if c.Name != "" {
		habit.Name = c.Name
	}
	if c.Type != "" {
		habit.Type = constants.HabitType(c.Type)
	}
	if c.Schedule != "" {
		sched, err := BuildSchedule(c.Schedule, c.Interval, c.Days)
		if err != nil {
			return err
		}
		habit.Schedule = sched
	}
	ctx.StampUpdate(&habit, time.Now())

	if err := ctx.Store.UpdateHabit(habit); err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	ctx.MarkDirty()

	fmt.Printf("%s %s\n", successStyle.Render("Updated"), habit.Name)
	return nil
}

type HabitDeleteCmd struct {
	Habit string `arg:"" help:"Habit ID or name."`
}

func (c *HabitDeleteCmd) Run(ctx *Context) error {
	habit, err := findHabit(ctx, c.Habit)
	if err != nil {
		return err
	}

	if err := ctx.Store.DeleteHabit(habit.ID); err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	ctx.MarkDirty()

	fmt.Printf("%s %s and its logs\n", dangerStyle.Render("Deleted"), habit.Name)
	return nil
}
