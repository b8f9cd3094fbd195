package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/julianstephens/habitloop/internal/bundle"
)

type ExportCmd struct {
	Output string `help:"File to write the bundle to, defaults to stdout." short:"o"`
}

func (c *ExportCmd) Run(ctx *Context) error {
	habits, err := ctx.Store.GetAllHabits()
	if err != nil {
		return fmt.Errorf("failed to get habits: %w", err)
	}
	logs, err := ctx.Store.GetAllLogs()
	if err != nil {
		return fmt.Errorf("failed to get logs: %w", err)
	}
	settings, err := ctx.Store.GetSettings()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	data, err := bundle.Serialize(bundle.New(habits, logs, settings, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to serialize bundle: %w", err)
	}

	if c.Output == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(c.Output, data, 0600); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	fmt.Printf("%s %d habits and %d logs to %s\n", successStyle.Render("Exported"), len(habits), len(logs), c.Output)
	return nil
}

type ImportCmd struct {
	File string `arg:"" help:"Bundle file to import."`
}

func (c *ImportCmd) Run(ctx *Context) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}

	imported, err := bundle.Deserialize(data, time.Now())
	if err != nil {
		var invalid *bundle.InvalidError
		if errors.As(err, &invalid) {
			fmt.Println(dangerStyle.Render("Bundle rejected:"))
			fmt.Print(invalid.Result.FormatReport())
			return fmt.Errorf("import aborted")
		}
		return err
	}

	// Snapshot current state before the import replaces it.
	if err := snapshotLocal(ctx); err != nil {
		return err
	}

	if err := ctx.Store.ReplaceHabits(imported.Habits); err != nil {
		return fmt.Errorf("failed to import habits: %w", err)
	}
	if err := ctx.Store.ReplaceLogs(imported.Logs); err != nil {
		return fmt.Errorf("failed to import logs: %w", err)
	}
	if err := ctx.Store.SaveSettings(imported.Settings); err != nil {
		return fmt.Errorf("failed to import settings: %w", err)
	}
	ctx.MarkDirty()

	fmt.Printf("%s %d habits and %d logs\n", successStyle.Render("Imported"), len(imported.Habits), len(imported.Logs))
	return nil
}

func snapshotLocal(ctx *Context) error {
	habits, err := ctx.Store.GetAllHabits()
	if err != nil {
		return err
	}
	logs, err := ctx.Store.GetAllLogs()
	if err != nil {
		return err
	}
	settings, err := ctx.Store.GetSettings()
	if err != nil {
		return err
	}

	now := time.Now()
	data, err := bundle.Serialize(bundle.New(habits, logs, settings, now))
	if err != nil {
		return err
	}
	if _, err := ctx.Backups.WriteSnapshot(data, now); err != nil {
		return fmt.Errorf("failed to snapshot current state: %w", err)
	}
	return nil
}
