package cli

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitloop/internal/streak"
)

type StatsCmd struct {
	Habit string `arg:"" optional:"" help:"Habit ID or name. Omit for all habits."`
}

func (c *StatsCmd) Run(ctx *Context) error {
	habits, err := ctx.Store.GetAllHabits()
	if err != nil {
		return fmt.Errorf("failed to get habits: %w", err)
	}
	if c.Habit != "" {
		habit, err := findHabit(ctx, c.Habit)
		if err != nil {
			return err
		}
		habits = habits[:0]
		habits = append(habits, habit)
	}
	if len(habits) == 0 {
		fmt.Println("No habits found")
		return nil
	}

	now := time.Now()
	for _, habit := range habits {
		logs, err := ctx.Store.GetLogsForHabit(habit.ID)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		stats := streak.Compute(habit, logs, now)
		fmt.Println(titleStyle.Render(habit.Name))
		fmt.Printf("  Current streak:  %s\n", streakStyle.Render(fmt.Sprintf("%d", stats.CurrentStreak)))
		fmt.Printf("  Longest streak:  %d\n", stats.LongestStreak)
		fmt.Printf("  Days tracked:    %d\n", stats.TotalDays)
		fmt.Printf("  Days completed:  %d\n", stats.CompletedDays)
		fmt.Printf("  Completion rate: %.0f%%\n", stats.CompletionRate)
		fmt.Println()
	}
	return nil
}
