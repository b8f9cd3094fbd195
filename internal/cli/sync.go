package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/keyring"
	"github.com/julianstephens/habitloop/internal/syncer"
)

type SyncPushCmd struct{}

func (c *SyncPushCmd) Run(ctx *Context) error {
	if ctx.Sync == nil {
		return fmt.Errorf("sync is not configured, run '%s sync login' first", constants.AppName)
	}

	if err := ctx.Sync.Push(context.Background()); err != nil {
		if errors.Is(err, syncer.ErrReauthRequired) {
			fmt.Println(warningStyle.Render("Access token expired. Run 'sync login' to reconnect."))
			return err
		}
		return err
	}
	fmt.Println(successStyle.Render("Pushed local data"))
	return nil
}

type SyncPullCmd struct{}

func (c *SyncPullCmd) Run(ctx *Context) error {
	if ctx.Sync == nil {
		return fmt.Errorf("sync is not configured, run '%s sync login' first", constants.AppName)
	}

	conflicts, err := ctx.Sync.Pull(context.Background())
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrNothingToPull):
			fmt.Println("No remote data yet. Run 'sync push' to upload this device's data.")
			return nil
		case errors.Is(err, syncer.ErrReauthRequired):
			fmt.Println(warningStyle.Render("Access token expired. Run 'sync login' to reconnect."))
			return err
		}
		return err
	}

	if len(conflicts) == 0 {
		fmt.Println(successStyle.Render("Pulled and merged remote data"))
		return nil
	}

	fmt.Println(warningStyle.Render(fmt.Sprintf("Merged with %d conflicting records (local values kept):", len(conflicts))))
	keys := make([]string, 0, len(conflicts))
	for key := range conflicts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for field, fc := range conflicts[key] {
			fmt.Printf("  %s.%s: local=%v remote=%v\n", key, field, fc.Local, fc.Remote)
		}
	}
	return nil
}

type SyncStatusCmd struct{}

func (c *SyncStatusCmd) Run(ctx *Context) error {
	meta, err := ctx.Store.GetSyncMeta()
	if err != nil {
		return fmt.Errorf("failed to get sync state: %w", err)
	}

	fmt.Println(titleStyle.Render("Sync status"))
	if ctx.Sync != nil {
		fmt.Printf("  State:          %s\n", ctx.Sync.State())
	}
	if meta.LastSyncedAt != nil {
		fmt.Printf("  Last synced:    %s\n", meta.LastSyncedAt.Local().Format("2006-01-02 15:04"))
	} else {
		fmt.Println("  Last synced:    never")
	}
	fmt.Printf("  Pending push:   %v\n", meta.PendingPush)
	if meta.RetryCount > 0 {
		fmt.Printf("  Failed retries: %s\n", warningStyle.Render(fmt.Sprintf("%d", meta.RetryCount)))
	}

	if _, err := keyring.GetAccessToken(); err != nil {
		fmt.Println("  Account:        " + mutedStyle.Render("signed out"))
	} else {
		fmt.Println("  Account:        connected")
	}
	return nil
}

type SyncLoginCmd struct {
	Token string `arg:"" help:"Cloud access token."`
}

func (c *SyncLoginCmd) Run(ctx *Context) error {
	if err := keyring.SetAccessToken(c.Token); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	fmt.Println(successStyle.Render("Connected. Token stored in the OS keyring."))
	return nil
}

type SyncSignoutCmd struct{}

func (c *SyncSignoutCmd) Run(ctx *Context) error {
	if err := keyring.DeleteAccessToken(); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to remove access token: %w", err)
	}

	// Local data stays; only the remote link is severed.
	meta, err := ctx.Store.GetSyncMeta()
	if err != nil {
		return err
	}
	meta.PendingPush = false
	meta.RetryCount = 0
	if err := ctx.Store.SaveSyncMeta(meta); err != nil {
		return err
	}

	fmt.Println("Signed out. Local data is untouched.")
	return nil
}
