package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitloop/internal/bundle"
	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/keyring"
	"github.com/julianstephens/habitloop/internal/utils"
	"github.com/julianstephens/habitloop/internal/validation"
)

type InitCmd struct{}

func (c *InitCmd) Run(ctx *Context) error {
	if err := ctx.Store.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	fmt.Printf("%s storage at %s (account %q)\n",
		successStyle.Render("Initialized"), ctx.Store.GetConfigPath(), ctx.Store.Account())
	return nil
}

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false
	storeReachable := false

	if err := ctx.Store.Load(); err != nil {
		fmt.Printf("❌ Storage reachable: FAIL\n   Error: %v\n", err)
		hasError = true
	} else {
		fmt.Printf("✓ Storage reachable: OK\n")
		storeReachable = true
	}

	if storeReachable {
		if err := checkDataIntegrity(ctx); err != nil {
			fmt.Printf("❌ Data validation: FAIL\n   Error: %v\n", err)
			hasError = true
		} else {
			fmt.Printf("✓ Data validation: OK\n")
		}
	} else {
		fmt.Printf("⊘ Data validation: SKIPPED (storage not reachable)\n")
	}

	if keyring.IsAvailable() {
		fmt.Printf("✓ OS keyring: OK\n")
	} else {
		fmt.Printf("⚠ OS keyring: WARNING\n   Keyring unavailable; sync login will not work on this machine\n")
	}

	if err := checkClockTimezone(ctx); err != nil {
		fmt.Printf("❌ Clock/timezone: FAIL\n   Error: %v\n", err)
		hasError = true
	} else {
		fmt.Printf("✓ Clock/timezone: OK\n")
	}

	if err := checkConcurrentInstances(); err != nil {
		fmt.Printf("⚠ Concurrent instances: WARNING\n   %v\n", err)
	} else {
		fmt.Printf("✓ Concurrent instances: OK\n")
	}

	fmt.Println()
	if hasError {
		return fmt.Errorf("diagnostics found problems")
	}
	fmt.Println(successStyle.Render("All checks passed"))
	return nil
}

// checkDataIntegrity runs the bundle validator over current state, the
// same gate an export or sync push would pass through.
func checkDataIntegrity(ctx *Context) error {
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

	result := validation.ValidateBundle(bundle.New(habits, logs, settings, time.Now()))
	if !result.Valid() {
		return fmt.Errorf("%d validation errors:\n%s", len(result.Errors), result.FormatReport())
	}
	return nil
}

func checkClockTimezone(ctx *Context) error {
	settings, err := ctx.Store.GetSettings()
	if err != nil {
		return err
	}
	if settings.Timezone != "" {
		if _, err := utils.LoadLocation(settings.Timezone); err != nil {
			return fmt.Errorf("configured timezone %q is invalid: %w", settings.Timezone, err)
		}
	}

	now := time.Now()
	if now.Year() < 2020 {
		return fmt.Errorf("system clock reads %s, check the system time", now.Format(constants.DateFormat))
	}
	return nil
}

// checkConcurrentInstances warns when another habitloop process is
// running, since local storage assumes a single writer.
func checkConcurrentInstances() error {
	processes, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("unable to list processes: %w", err)
	}

	self := os.Getpid()
	count := 0
	for _, p := range processes {
		if p.Executable() == constants.AppName && p.Pid() != self {
			count++
		}
	}
	if count > 0 {
		return fmt.Errorf("%d other %s process(es) running; concurrent writes can lose data", count, constants.AppName)
	}
	return nil
}
