package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitloop/internal/bundle"
)

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *Context) error {
	if err := snapshotLocal(ctx); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Snapshot created"))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *Context) error {
	snapshots, err := ctx.Backups.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}

	fmt.Println(titleStyle.Render("Snapshots:"))
	for _, s := range snapshots {
		fmt.Printf("  %s  %6d bytes  %s\n", s.Timestamp.Format("2006-01-02 15:04:05"), s.Size, s.Path)
	}
	return nil
}

type BackupRestoreCmd struct {
	Path string `arg:"" help:"Snapshot file to restore."`
}

func (c *BackupRestoreCmd) Run(ctx *Context) error {
	data, err := ctx.Backups.ReadSnapshot(c.Path)
	if err != nil {
		return err
	}

	// Restored snapshots go through the same migrate/validate gate as
	// any other inbound bundle.
	restored, err := bundle.Deserialize(data, time.Now())
	if err != nil {
		var invalid *bundle.InvalidError
		if errors.As(err, &invalid) {
			fmt.Println(dangerStyle.Render("Snapshot rejected:"))
			fmt.Print(invalid.Result.FormatReport())
			return fmt.Errorf("restore aborted")
		}
		return err
	}

	// Snapshot current state first so the restore itself can be undone.
	if err := snapshotLocal(ctx); err != nil {
		return err
	}

	if err := ctx.Store.ReplaceHabits(restored.Habits); err != nil {
		return fmt.Errorf("failed to restore habits: %w", err)
	}
	if err := ctx.Store.ReplaceLogs(restored.Logs); err != nil {
		return fmt.Errorf("failed to restore logs: %w", err)
	}
	if err := ctx.Store.SaveSettings(restored.Settings); err != nil {
		return fmt.Errorf("failed to restore settings: %w", err)
	}
	ctx.MarkDirty()

	fmt.Printf("%s %d habits and %d logs\n", successStyle.Render("Restored"), len(restored.Habits), len(restored.Logs))
	return nil
}
