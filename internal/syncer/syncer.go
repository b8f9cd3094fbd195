// Package syncer coordinates when bundles move to and from the remote.
// It owns the push/pull state machine and retry policy; the transport
// mechanics live behind transport.CloudTransport.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/julianstephens/habitloop/internal/autofinalize"
	"github.com/julianstephens/habitloop/internal/backup"
	"github.com/julianstephens/habitloop/internal/bundle"
	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/logger"
	"github.com/julianstephens/habitloop/internal/merge"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/storage"
	"github.com/julianstephens/habitloop/internal/streak"
	"github.com/julianstephens/habitloop/internal/transport"
	"github.com/julianstephens/habitloop/internal/utils"
)

// ErrReauthRequired is returned when the remote rejected the access
// token. The token has already been cleared; the user must sign in
// again before sync can resume.
var ErrReauthRequired = errors.New("re-authentication required")

// ErrNothingToPull wraps transport.ErrNoRemoteBundle for callers that
// want to push the first bundle instead.
var ErrNothingToPull = transport.ErrNoRemoteBundle

// Syncer drives push/pull for a single account.
type Syncer struct {
	mu sync.Mutex

	store     storage.Provider
	transport transport.CloudTransport
	backups   *backup.Manager

	state    constants.SyncState
	inFlight bool
	// queued records a push request that arrived while one was in
	// flight. Completion never starts another transport call itself:
	// the caller observes Pending and triggers the next push.
	queued bool

	debounce time.Duration
	timer    *time.Timer

	now    func() time.Time
	sleep  func(time.Duration)
	jitter func(base time.Duration) time.Duration

	clearToken func() error
	onSuccess  func()
	lastNotify time.Time
}

type Option func(*Syncer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithSleep overrides the backoff sleep, used in tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Syncer) { s.sleep = sleep }
}

// WithJitter overrides the backoff jitter, used in tests.
func WithJitter(jitter func(time.Duration) time.Duration) Option {
	return func(s *Syncer) { s.jitter = jitter }
}

// WithDebounce overrides the debounce interval for change-driven pushes.
func WithDebounce(d time.Duration) Option {
	return func(s *Syncer) { s.debounce = d }
}

// WithTokenClearer sets the hook invoked when the remote rejects the
// access token.
func WithTokenClearer(clear func() error) Option {
	return func(s *Syncer) { s.clearToken = clear }
}

// WithSuccessHook sets the notification hook fired after a successful
// push. Rapid consecutive successes are coalesced into one call.
func WithSuccessHook(hook func()) Option {
	return func(s *Syncer) { s.onSuccess = hook }
}

func New(store storage.Provider, ct transport.CloudTransport, backups *backup.Manager, opts ...Option) *Syncer {
	s := &Syncer{
		store:     store,
		transport: ct,
		backups:   backups,
		state:     constants.SyncIdle,
		debounce:  constants.SyncDefaultDebounce,
		now:       time.Now,
		sleep:     time.Sleep,
	}
	s.jitter = func(base time.Duration) time.Duration {
		if base <= 0 {
			return 0
		}
		return time.Duration(rand.Int63n(int64(base)))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current sync state.
func (s *Syncer) State() constants.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports whether a push intent is recorded, either queued
// behind an in-flight push or persisted from a previous run.
func (s *Syncer) Pending() bool {
	s.mu.Lock()
	queued := s.queued
	s.mu.Unlock()
	if queued {
		return true
	}

	meta, err := s.store.GetSyncMeta()
	if err != nil {
		return false
	}
	return meta.PendingPush
}

// MarkDirty records a local change and schedules a trailing-edge
// debounced push. A newer change resets the timer instead of stacking
// a second one.
func (s *Syncer) MarkDirty() error {
	if err := s.persistPending(true); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == constants.SyncIdle || s.state == constants.SyncSuccess || s.state == constants.SyncFailed {
		s.state = constants.SyncPending
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Push(context.Background()); err != nil {
			logger.Warn("debounced push failed", "error", err)
		}
	})
	return nil
}

// Stop cancels any scheduled debounced push.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Push uploads the current local bundle. A call that arrives while a
// push is in flight records the intent and returns immediately.
func (s *Syncer) Push(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.queued = true
		s.mu.Unlock()
		logger.Debug("push coalesced behind in-flight attempt")
		return nil
	}
	s.inFlight = true
	s.queued = false
	s.state = constants.SyncPushing
	s.mu.Unlock()

	err := s.pushWithRetry(ctx)

	s.mu.Lock()
	s.inFlight = false
	queued := s.queued
	if err != nil {
		s.state = constants.SyncFailed
	} else {
		s.state = constants.SyncSuccess
	}
	s.mu.Unlock()

	if err == nil && queued {
		// Re-record the queued intent that the success path cleared.
		if perr := s.persistPending(true); perr != nil {
			return perr
		}
	}
	return err
}

func (s *Syncer) pushWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= constants.SyncMaxAttempts; attempt++ {
		// The intent flag goes down only on success, so a crash
		// mid-attempt leaves the push queued for the next launch.
		if err := s.persistPending(true); err != nil {
			return err
		}

		data, err := s.localBundleBytes()
		if err != nil {
			return err
		}

		err = s.transport.Upload(ctx, data)
		if err == nil {
			return s.recordSuccess(data)
		}
		if errors.Is(err, transport.ErrUnauthorized) {
			return s.handleUnauthorized(err)
		}

		lastErr = err
		logger.Warn("push attempt failed", "attempt", attempt, "error", err)
		if err := s.recordFailure(); err != nil {
			return err
		}

		if attempt < constants.SyncMaxAttempts {
			backoff := constants.SyncBaseBackoff << (attempt - 1)
			s.sleep(backoff + s.jitter(backoff))
		}
	}
	return fmt.Errorf("push failed after %d attempts: %w", constants.SyncMaxAttempts, lastErr)
}

// Pull downloads the remote bundle, runs it through the
// migrate/validate/merge pipeline and persists the result. The returned
// conflicts are already resolved in favor of the local side; callers
// surface them for review.
func (s *Syncer) Pull(ctx context.Context) (merge.RecordConflicts, error) {
	data, err := s.transport.Download(ctx)
	if err != nil {
		if errors.Is(err, transport.ErrUnauthorized) {
			return nil, s.handleUnauthorized(err)
		}
		return nil, err
	}

	remote, err := bundle.Deserialize(data, s.now())
	if err != nil {
		return nil, fmt.Errorf("remote bundle rejected: %w", err)
	}

	local, err := s.localBundle()
	if err != nil {
		return nil, err
	}

	base := s.baseBundle()

	// Snapshot local state before the merge overwrites it.
	localData, err := bundle.Serialize(local)
	if err != nil {
		return nil, err
	}
	if _, err := s.backups.WriteSnapshot(localData, s.now()); err != nil {
		return nil, err
	}

	merged, conflicts, err := merge.Bundles(&local, &remote, base)
	if err != nil {
		return nil, err
	}

	if err := s.persistBundle(merged); err != nil {
		return nil, err
	}

	mergedData, err := bundle.Serialize(merged)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveBaseSnapshot(mergedData); err != nil {
		return nil, err
	}

	meta, err := s.store.GetSyncMeta()
	if err != nil {
		return nil, err
	}
	synced := s.now()
	meta.LastSyncedAt = &synced
	if err := s.store.SaveSyncMeta(meta); err != nil {
		return nil, err
	}

	if len(conflicts) > 0 {
		logger.Info("pull merged with conflicts", "records", len(conflicts))
	}
	return conflicts, nil
}

// Startup runs the launch-time sync pass: pull once when autosync is
// enabled, then drain any push intent persisted from a previous run.
func (s *Syncer) Startup(ctx context.Context) (merge.RecordConflicts, error) {
	settings, err := s.store.GetSettings()
	if err != nil {
		return nil, err
	}
	var conflicts merge.RecordConflicts
	if settings.AutoSync {
		conflicts, err = s.Pull(ctx)
		if err != nil && !errors.Is(err, ErrNothingToPull) {
			return nil, err
		}
	}

	// A push intent persisted by a previous run is retried regardless
	// of the autosync setting; the process that queued it has exited.
	meta, err := s.store.GetSyncMeta()
	if err != nil {
		return conflicts, err
	}
	if meta.PendingPush {
		logger.Debug("draining persisted push intent")
		if err := s.Push(ctx); err != nil {
			return conflicts, err
		}
	}
	return conflicts, nil
}

// RefreshIfNeeded backfills unlogged expected days once per calendar
// day and recomputes stored streaks. Returns the number of logs added.
func (s *Syncer) RefreshIfNeeded(now time.Time) (int, error) {
	meta, err := s.store.GetSyncMeta()
	if err != nil {
		return 0, err
	}
	today := utils.FormatLocalDate(now)
	if meta.LastFinalizedDate == today {
		return 0, nil
	}

	habits, err := s.store.GetAllHabits()
	if err != nil {
		return 0, err
	}
	logs, err := s.store.GetAllLogs()
	if err != nil {
		return 0, err
	}

	autoLogs := autofinalize.ComputeAutoLogs(habits, logs, now)
	for _, log := range autoLogs {
		if err := s.store.UpsertLog(log); err != nil {
			return 0, err
		}
	}

	if len(autoLogs) > 0 {
		// Streaks are denormalized onto the habit, so re-read logs
		// after the backfill and recompute.
		logs, err = s.store.GetAllLogs()
		if err != nil {
			return 0, err
		}
		for _, habit := range habits {
			current := streak.Current(habit, logs, now)
			if current != habit.Streak {
				habit.Streak = current
				if err := s.store.UpdateHabit(habit); err != nil {
					return 0, err
				}
			}
		}
	}

	meta, err = s.store.GetSyncMeta()
	if err != nil {
		return 0, err
	}
	meta.LastFinalizedDate = today
	if err := s.store.SaveSyncMeta(meta); err != nil {
		return 0, err
	}

	if len(autoLogs) > 0 {
		logger.Info("finalized missed days", "logs", len(autoLogs))
		if err := s.MarkDirty(); err != nil {
			return len(autoLogs), err
		}
	}
	return len(autoLogs), nil
}

func (s *Syncer) localBundle() (models.ExportBundle, error) {
	habits, err := s.store.GetAllHabits()
	if err != nil {
		return models.ExportBundle{}, err
	}
	logs, err := s.store.GetAllLogs()
	if err != nil {
		return models.ExportBundle{}, err
	}
	settings, err := s.store.GetSettings()
	if err != nil {
		return models.ExportBundle{}, err
	}
	return bundle.New(habits, logs, settings, s.now()), nil
}

func (s *Syncer) localBundleBytes() ([]byte, error) {
	b, err := s.localBundle()
	if err != nil {
		return nil, err
	}
	return bundle.Serialize(b)
}

// baseBundle loads the last synced snapshot for three-way merging.
// A missing or unreadable snapshot degrades to a two-way merge.
func (s *Syncer) baseBundle() *models.ExportBundle {
	data, err := s.store.GetBaseSnapshot()
	if err != nil || len(data) == 0 {
		return nil
	}
	base, err := bundle.Deserialize(data, s.now())
	if err != nil {
		logger.Warn("discarding unreadable base snapshot", "error", err)
		return nil
	}
	return &base
}

func (s *Syncer) persistBundle(b models.ExportBundle) error {
	if err := s.store.ReplaceHabits(b.Habits); err != nil {
		return err
	}
	if err := s.store.ReplaceLogs(b.Logs); err != nil {
		return err
	}
	return s.store.SaveSettings(b.Settings)
}

func (s *Syncer) persistPending(pending bool) error {
	meta, err := s.store.GetSyncMeta()
	if err != nil {
		return err
	}
	meta.PendingPush = pending
	return s.store.SaveSyncMeta(meta)
}

func (s *Syncer) recordSuccess(data []byte) error {
	if err := s.store.SaveBaseSnapshot(data); err != nil {
		return err
	}

	meta, err := s.store.GetSyncMeta()
	if err != nil {
		return err
	}
	synced := s.now()
	meta.PendingPush = false
	meta.RetryCount = 0
	meta.LastSyncedAt = &synced
	if err := s.store.SaveSyncMeta(meta); err != nil {
		return err
	}

	s.notifySuccess(synced)
	return nil
}

func (s *Syncer) notifySuccess(at time.Time) {
	s.mu.Lock()
	coalesce := !s.lastNotify.IsZero() && at.Sub(s.lastNotify) < constants.SyncSuccessWindow
	if !coalesce {
		s.lastNotify = at
	}
	hook := s.onSuccess
	s.mu.Unlock()

	if coalesce || hook == nil {
		return
	}
	hook()
}

func (s *Syncer) recordFailure() error {
	meta, err := s.store.GetSyncMeta()
	if err != nil {
		return err
	}
	meta.RetryCount++
	return s.store.SaveSyncMeta(meta)
}

func (s *Syncer) handleUnauthorized(cause error) error {
	logger.Warn("remote rejected access token")
	if s.clearToken != nil {
		if err := s.clearToken(); err != nil {
			logger.Error("failed to clear stored token", "error", err)
		}
	}
	return fmt.Errorf("%w: %s", ErrReauthRequired, cause)
}
