package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habitloop/internal/backup"
	"github.com/julianstephens/habitloop/internal/cli"
	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/errors"
	"github.com/julianstephens/habitloop/internal/keyring"
	"github.com/julianstephens/habitloop/internal/logger"
	"github.com/julianstephens/habitloop/internal/storage"
	"github.com/julianstephens/habitloop/internal/syncer"
	"github.com/julianstephens/habitloop/internal/transport"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Storage file path (.json for a JSON store, anything else for SQLite)." default:"~/.config/habitloop/habitloop.db"`
	Account string `help:"Account scope to operate on." default:"local"`
	Debug   bool   `help:"Enable debug logging."`

	Init   cli.InitCmd   `cmd:"" help:"Initialize habitloop storage."`
	Doctor cli.DoctorCmd `cmd:"" help:"Run health checks and diagnostics."`
	Habit  struct {
		Add    cli.HabitAddCmd    `cmd:"" help:"Add a new habit."`
		List   cli.HabitListCmd   `cmd:"" help:"List habits." default:"1"`
		Edit   cli.HabitEditCmd   `cmd:"" help:"Edit an existing habit."`
		Delete cli.HabitDeleteCmd `cmd:"" help:"Delete a habit and its logs."`
	} `cmd:"" help:"Manage habits."`
	Track cli.TrackCmd `cmd:"" help:"Log a habit for a day."`
	Undo  cli.UndoCmd  `cmd:"" help:"Remove a day's log."`
	Stats cli.StatsCmd `cmd:"" help:"Show streaks and completion stats."`

	Export cli.ExportCmd `cmd:"" help:"Export all data as a bundle."`
	Import cli.ImportCmd `cmd:"" help:"Import a bundle, replacing local data."`

	Sync struct {
		Push    cli.SyncPushCmd    `cmd:"" help:"Upload local data to the cloud."`
		Pull    cli.SyncPullCmd    `cmd:"" help:"Download and merge remote data."`
		Status  cli.SyncStatusCmd  `cmd:"" help:"Show sync state." default:"1"`
		Login   cli.SyncLoginCmd   `cmd:"" help:"Store a cloud access token."`
		Signout cli.SyncSignoutCmd `cmd:"" help:"Disconnect from the cloud."`
	} `cmd:"" help:"Sync with cloud storage."`

	Backup struct {
		Create  cli.BackupCreateCmd  `cmd:"" help:"Create a manual snapshot." default:"1"`
		List    cli.BackupListCmd    `cmd:"" help:"List available snapshots."`
		Restore cli.BackupRestoreCmd `cmd:"" help:"Restore from a snapshot."`
	} `cmd:"" help:"Manage local snapshots."`

	Settings struct {
		Show cli.SettingsShowCmd `cmd:"" help:"Show current settings." default:"1"`
		Set  cli.SettingsSetCmd  `cmd:"" help:"Change a setting."`
	} `cmd:"" help:"Manage application settings."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Local-first habit tracker with cloud sync"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	configPath := expandPath(CLI.Config)

	if err := logger.Init(logger.Config{Debug: CLI.Debug, ConfigDir: filepath.Dir(configPath)}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}

	var store storage.Provider
	if strings.HasSuffix(configPath, ".json") {
		store = storage.NewJSONStore(configPath, CLI.Account)
	} else {
		store = storage.NewSQLiteStore(configPath, CLI.Account)
	}
	defer store.Close()

	backups := backup.NewManager(configPath)

	deviceID, err := cli.LoadDeviceID(configPath)
	if err != nil {
		logger.Warn("failed to load device id", "error", err)
	}

	appCtx := &cli.Context{
		Store:    store,
		Backups:  backups,
		DeviceID: deviceID,
	}

	command := ""
	if ctx.Selected() != nil {
		command = ctx.Selected().Name
	}

	// Init handles its own bootstrap; everything else needs a loaded store.
	if command != "init" {
		if err := store.Load(); err != nil {
			errors.Fatal(err)
		}

		appCtx.Sync = syncer.New(store,
			transport.NewDriveClient(keyring.GetAccessToken),
			backups,
			syncer.WithTokenClearer(keyring.DeleteAccessToken),
		)
		defer appCtx.Sync.Stop()

		// Day-boundary catch-up: backfill any days missed since the
		// last run before the command reads state.
		if _, err := appCtx.Sync.RefreshIfNeeded(time.Now()); err != nil {
			logger.Warn("auto-finalize pass failed", "error", err)
		}

		// Launch-time sync pass: pull when autosync is on and retry a
		// push that a previous run persisted but never sent. Never
		// fatal; the command itself still runs offline.
		if conflicts, err := appCtx.Sync.Startup(context.Background()); err != nil {
			logger.Warn("startup sync pass failed", "error", err)
		} else if len(conflicts) > 0 {
			fmt.Fprintf(os.Stderr, "Warning: sync pull left %d record(s) with conflicts, run 'habitloop sync pull' to review them\n", len(conflicts))
		}
	}

	if err := ctx.Run(appCtx); err != nil {
		errors.Fatal(err)
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
