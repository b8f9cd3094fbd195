package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/habitloop/internal/backup"
	"github.com/julianstephens/habitloop/internal/bundle"
	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/storage"
	"github.com/julianstephens/habitloop/internal/transport"
	"github.com/julianstephens/habitloop/internal/utils"
)

type fakeTransport struct {
	mu          sync.Mutex
	uploads     [][]byte
	uploadErrs  []error
	remote      []byte
	downloadErr error
	uploadGate  chan struct{}
}

func (f *fakeTransport) Upload(ctx context.Context, data []byte) error {
	if f.uploadGate != nil {
		<-f.uploadGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, data)
	if len(f.uploadErrs) > 0 {
		err := f.uploadErrs[0]
		f.uploadErrs = f.uploadErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTransport) Download(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if f.remote == nil {
		return nil, transport.ErrNoRemoteBundle
	}
	return f.remote, nil
}

func (f *fakeTransport) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) storage.Provider {
	t.Helper()
	store := storage.NewJSONStore(filepath.Join(t.TempDir(), "habitloop.json"), "")
	if err := store.Init(); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSyncer(t *testing.T, store storage.Provider, ft *fakeTransport, opts ...Option) *Syncer {
	t.Helper()
	backups := backup.NewManager(store.GetConfigPath())
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithSleep(func(time.Duration) {}),
		WithJitter(func(time.Duration) time.Duration { return 0 }),
	}
	return New(store, ft, backups, append(base, opts...)...)
}

func addHabit(t *testing.T, store storage.Provider, id, name string, updatedAt time.Time) models.Habit {
	t.Helper()
	habit := models.Habit{
		ID:        id,
		Name:      name,
		Type:      constants.HabitGood,
		CreatedAt: testNow.AddDate(0, 0, -30),
		UpdatedAt: &updatedAt,
		Version:   1,
	}
	if err := store.AddHabit(habit); err != nil {
		t.Fatalf("AddHabit failed: %v", err)
	}
	return habit
}

func TestPushUploadsBundle(t *testing.T) {
	store := newTestStore(t)
	addHabit(t, store, "h1", "Run", testNow.Add(-time.Hour))
	ft := &fakeTransport{}
	s := newTestSyncer(t, store, ft)

	if err := s.Push(context.Background()); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if ft.uploadCount() != 1 {
		t.Fatalf("expected 1 upload, got %d", ft.uploadCount())
	}
	if !strings.Contains(string(ft.uploads[0]), `"h1"`) {
		t.Error("expected uploaded bundle to contain habit")
	}
	if s.State() != constants.SyncSuccess {
		t.Errorf("expected success state, got %s", s.State())
	}

	meta, err := store.GetSyncMeta()
	if err != nil {
		t.Fatalf("GetSyncMeta failed: %v", err)
	}
	if meta.PendingPush {
		t.Error("expected pending flag cleared after success")
	}
	if meta.RetryCount != 0 {
		t.Errorf("expected retry count reset, got %d", meta.RetryCount)
	}
	if meta.LastSyncedAt == nil || !meta.LastSyncedAt.Equal(testNow) {
		t.Errorf("expected lastSyncedAt recorded, got %v", meta.LastSyncedAt)
	}

	snapshot, err := store.GetBaseSnapshot()
	if err != nil {
		t.Fatalf("GetBaseSnapshot failed: %v", err)
	}
	if string(snapshot) != string(ft.uploads[0]) {
		t.Error("expected base snapshot to match uploaded bundle")
	}
}

func TestPushRetriesWithBackoff(t *testing.T) {
	store := newTestStore(t)
	ft := &fakeTransport{uploadErrs: []error{
		errors.New("network down"),
		errors.New("network down"),
	}}
	var sleeps []time.Duration
	s := newTestSyncer(t, store, ft,
		WithSleep(func(d time.Duration) { sleeps = append(sleeps, d) }))

	if err := s.Push(context.Background()); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if ft.uploadCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", ft.uploadCount())
	}
	want := []time.Duration{constants.SyncBaseBackoff, 2 * constants.SyncBaseBackoff}
	if len(sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), sleeps)
	}
	for i, d := range want {
		if sleeps[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, sleeps[i])
		}
	}

	meta, _ := store.GetSyncMeta()
	if meta.RetryCount != 0 {
		t.Errorf("expected retry count reset after eventual success, got %d", meta.RetryCount)
	}
}

func TestPushGivesUpAfterMaxAttempts(t *testing.T) {
	store := newTestStore(t)
	errs := make([]error, constants.SyncMaxAttempts)
	for i := range errs {
		errs[i] = errors.New("network down")
	}
	ft := &fakeTransport{uploadErrs: errs}
	s := newTestSyncer(t, store, ft)

	err := s.Push(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if ft.uploadCount() != constants.SyncMaxAttempts {
		t.Errorf("expected %d attempts, got %d", constants.SyncMaxAttempts, ft.uploadCount())
	}
	if s.State() != constants.SyncFailed {
		t.Errorf("expected failed state, got %s", s.State())
	}

	meta, _ := store.GetSyncMeta()
	if !meta.PendingPush {
		t.Error("expected pending intent to survive a failed push")
	}
	if meta.RetryCount != constants.SyncMaxAttempts {
		t.Errorf("expected retry count %d, got %d", constants.SyncMaxAttempts, meta.RetryCount)
	}
}

func TestPushUnauthorizedAbortsImmediately(t *testing.T) {
	store := newTestStore(t)
	ft := &fakeTransport{uploadErrs: []error{transport.ErrUnauthorized}}
	var cleared bool
	var sleeps int
	s := newTestSyncer(t, store, ft,
		WithTokenClearer(func() error { cleared = true; return nil }),
		WithSleep(func(time.Duration) { sleeps++ }))

	err := s.Push(context.Background())
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
	if ft.uploadCount() != 1 {
		t.Errorf("expected no retries after auth failure, got %d attempts", ft.uploadCount())
	}
	if sleeps != 0 {
		t.Errorf("expected no backoff sleeps, got %d", sleeps)
	}
	if !cleared {
		t.Error("expected stored token to be cleared")
	}
}

func TestPushCoalescesWhileInFlight(t *testing.T) {
	store := newTestStore(t)
	gate := make(chan struct{})
	ft := &fakeTransport{uploadGate: gate}
	s := newTestSyncer(t, store, ft)

	done := make(chan error, 1)
	go func() { done <- s.Push(context.Background()) }()

	// Wait for the first push to enter the transport call.
	deadline := time.After(2 * time.Second)
	for s.State() != constants.SyncPushing {
		select {
		case <-deadline:
			t.Fatal("first push never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Second request coalesces without starting a transport call.
	if err := s.Push(context.Background()); err != nil {
		t.Fatalf("coalesced push failed: %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("in-flight push failed: %v", err)
	}

	if ft.uploadCount() != 1 {
		t.Errorf("expected 1 transport call, got %d", ft.uploadCount())
	}
	// Completion does not drain the queued intent.
	if !s.Pending() {
		t.Error("expected queued intent to remain pending after completion")
	}
}

func TestMarkDirtyDebouncesTrailingEdge(t *testing.T) {
	store := newTestStore(t)
	ft := &fakeTransport{}
	s := newTestSyncer(t, store, ft, WithDebounce(30*time.Millisecond))
	defer s.Stop()

	for i := 0; i < 3; i++ {
		if err := s.MarkDirty(); err != nil {
			t.Fatalf("MarkDirty failed: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s.State() != constants.SyncPending {
		t.Errorf("expected pending state, got %s", s.State())
	}
	if ft.uploadCount() != 0 {
		t.Error("expected no upload before debounce elapsed")
	}

	deadline := time.After(2 * time.Second)
	for ft.uploadCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("debounced push never fired")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	// Settle, then confirm the timer was reset rather than stacked.
	time.Sleep(100 * time.Millisecond)
	if ft.uploadCount() != 1 {
		t.Errorf("expected exactly 1 upload, got %d", ft.uploadCount())
	}
}

func TestSuccessNotificationsCoalesce(t *testing.T) {
	store := newTestStore(t)
	ft := &fakeTransport{}
	var notified int
	s := newTestSyncer(t, store, ft, WithSuccessHook(func() { notified++ }))

	for i := 0; i < 3; i++ {
		if err := s.Push(context.Background()); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}
	if notified != 1 {
		t.Errorf("expected 1 coalesced notification, got %d", notified)
	}
}

func TestPullNothingRemote(t *testing.T) {
	store := newTestStore(t)
	s := newTestSyncer(t, store, &fakeTransport{})

	_, err := s.Pull(context.Background())
	if !errors.Is(err, ErrNothingToPull) {
		t.Errorf("expected ErrNothingToPull, got %v", err)
	}
}

func TestPullRejectsInvalidRemote(t *testing.T) {
	store := newTestStore(t)
	addHabit(t, store, "h1", "Run", testNow.Add(-time.Hour))
	ft := &fakeTransport{remote: []byte(`{"version":"99","habits":"nope"}`)}
	s := newTestSyncer(t, store, ft)

	if _, err := s.Pull(context.Background()); err == nil {
		t.Fatal("expected error for invalid remote bundle")
	}

	// Local state untouched.
	habits, err := store.GetAllHabits()
	if err != nil {
		t.Fatalf("GetAllHabits failed: %v", err)
	}
	if len(habits) != 1 || habits[0].Name != "Run" {
		t.Errorf("expected local habits preserved, got %+v", habits)
	}
}

func TestPullMergesRemoteChanges(t *testing.T) {
	store := newTestStore(t)

	baseTime := testNow.Add(-24 * time.Hour)
	original := models.Habit{
		ID:        "h1",
		Name:      "Run",
		Type:      constants.HabitGood,
		Streak:    1,
		CreatedAt: testNow.AddDate(0, 0, -30),
		UpdatedAt: &baseTime,
		Version:   1,
	}

	// The base snapshot captures the last synced state.
	baseBundle := bundle.New([]models.Habit{original}, nil, models.DefaultSettings(), baseTime)
	baseData, err := bundle.Serialize(baseBundle)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if err := store.SaveBaseSnapshot(baseData); err != nil {
		t.Fatalf("SaveBaseSnapshot failed: %v", err)
	}

	// Local edit: rename.
	localTime := testNow.Add(-2 * time.Hour)
	localHabit := original
	localHabit.Name = "Morning run"
	localHabit.UpdatedAt = &localTime
	if err := store.AddHabit(localHabit); err != nil {
		t.Fatalf("AddHabit failed: %v", err)
	}

	// Remote edit: streak bumped on another device.
	remoteTime := testNow.Add(-time.Hour)
	remoteHabit := original
	remoteHabit.Streak = 5
	remoteHabit.UpdatedAt = &remoteTime
	remoteBundle := bundle.New([]models.Habit{remoteHabit}, nil, models.DefaultSettings(), remoteTime)
	remoteData, err := bundle.Serialize(remoteBundle)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	ft := &fakeTransport{remote: remoteData}
	s := newTestSyncer(t, store, ft)

	conflicts, err := s.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("expected clean field-level merge, got conflicts %v", conflicts)
	}

	merged, err := store.GetHabit("h1")
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if merged.Name != "Morning run" {
		t.Errorf("expected local rename kept, got %q", merged.Name)
	}
	if merged.Streak != 5 {
		t.Errorf("expected remote streak kept, got %d", merged.Streak)
	}

	// Base snapshot advanced to the merged state.
	snapshot, err := store.GetBaseSnapshot()
	if err != nil {
		t.Fatalf("GetBaseSnapshot failed: %v", err)
	}
	var decoded models.ExportBundle
	if err := json.Unmarshal(snapshot, &decoded); err != nil {
		t.Fatalf("failed to decode base snapshot: %v", err)
	}
	if len(decoded.Habits) != 1 || decoded.Habits[0].Name != "Morning run" || decoded.Habits[0].Streak != 5 {
		t.Errorf("expected merged base snapshot, got %+v", decoded.Habits)
	}

	// A local snapshot was taken before the merge overwrote state.
	snapshots, err := backup.NewManager(store.GetConfigPath()).ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("expected 1 pre-merge snapshot, got %d", len(snapshots))
	}
}

func TestStartupSkipsWhenAutoSyncDisabled(t *testing.T) {
	store := newTestStore(t)
	ft := &fakeTransport{}
	s := newTestSyncer(t, store, ft)

	if _, err := s.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if ft.uploadCount() != 0 {
		t.Error("expected no transport calls with autosync disabled")
	}
}

func TestStartupDrainsIntentWithAutoSyncDisabled(t *testing.T) {
	store := newTestStore(t)
	habit := models.Habit{ID: "h1", Name: "Read", Type: constants.HabitGood, CreatedAt: testNow}
	if err := store.AddHabit(habit); err != nil {
		t.Fatalf("AddHabit failed: %v", err)
	}
	// A previous run queued a push but exited before the debounce fired.
	if err := store.SaveSyncMeta(models.SyncMeta{PendingPush: true}); err != nil {
		t.Fatalf("SaveSyncMeta failed: %v", err)
	}

	ft := &fakeTransport{}
	s := newTestSyncer(t, store, ft)

	if _, err := s.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if ft.uploadCount() != 1 {
		t.Errorf("expected the persisted intent to be retried on launch, got %d uploads", ft.uploadCount())
	}

	meta, err := store.GetSyncMeta()
	if err != nil {
		t.Fatalf("GetSyncMeta failed: %v", err)
	}
	if meta.PendingPush {
		t.Error("expected pending flag cleared after the drained push")
	}
}

func TestStartupDrainsPersistedIntent(t *testing.T) {
	store := newTestStore(t)
	settings, _ := store.GetSettings()
	settings.AutoSync = true
	if err := store.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if err := store.SaveSyncMeta(models.SyncMeta{PendingPush: true}); err != nil {
		t.Fatalf("SaveSyncMeta failed: %v", err)
	}

	ft := &fakeTransport{}
	s := newTestSyncer(t, store, ft)

	if _, err := s.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if ft.uploadCount() != 1 {
		t.Errorf("expected persisted intent to trigger a push, got %d uploads", ft.uploadCount())
	}

	meta, _ := store.GetSyncMeta()
	if meta.PendingPush {
		t.Error("expected pending flag cleared after drained push")
	}
}

func TestRefreshIfNeededBackfills(t *testing.T) {
	store := newTestStore(t)
	created := testNow.AddDate(0, 0, -3)
	habit := models.Habit{
		ID:        "h1",
		Name:      "Run",
		Type:      constants.HabitGood,
		Streak:    3,
		CreatedAt: created,
		Version:   1,
	}
	if err := store.AddHabit(habit); err != nil {
		t.Fatalf("AddHabit failed: %v", err)
	}

	ft := &fakeTransport{}
	s := newTestSyncer(t, store, ft, WithDebounce(time.Hour))
	defer s.Stop()

	added, err := s.RefreshIfNeeded(testNow)
	if err != nil {
		t.Fatalf("RefreshIfNeeded failed: %v", err)
	}
	if added != 3 {
		t.Errorf("expected 3 backfilled logs, got %d", added)
	}

	logs, err := store.GetAllLogs()
	if err != nil {
		t.Fatalf("GetAllLogs failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(logs))
	}
	today := utils.FormatLocalDate(testNow)
	for _, log := range logs {
		if log.Source != constants.SourceAuto {
			t.Errorf("expected auto source, got %s", log.Source)
		}
		if log.Date == today {
			t.Error("expected no log for today")
		}
		if log.Completed {
			t.Error("expected missed good-habit days marked incomplete")
		}
	}

	// A broken streak of missed days resets the stored streak.
	got, err := store.GetHabit("h1")
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if got.Streak != 0 {
		t.Errorf("expected streak recomputed to 0, got %d", got.Streak)
	}

	meta, _ := store.GetSyncMeta()
	if meta.LastFinalizedDate != today {
		t.Errorf("expected lastFinalizedDate %q, got %q", today, meta.LastFinalizedDate)
	}
	if !meta.PendingPush {
		t.Error("expected backfill to mark sync dirty")
	}
}

func TestRefreshIfNeededOncePerDay(t *testing.T) {
	store := newTestStore(t)
	habit := models.Habit{
		ID:        "h1",
		Name:      "Run",
		Type:      constants.HabitGood,
		CreatedAt: testNow.AddDate(0, 0, -3),
		Version:   1,
	}
	if err := store.AddHabit(habit); err != nil {
		t.Fatalf("AddHabit failed: %v", err)
	}

	s := newTestSyncer(t, store, &fakeTransport{}, WithDebounce(time.Hour))
	defer s.Stop()

	if _, err := s.RefreshIfNeeded(testNow); err != nil {
		t.Fatalf("RefreshIfNeeded failed: %v", err)
	}
	added, err := s.RefreshIfNeeded(testNow)
	if err != nil {
		t.Fatalf("second RefreshIfNeeded failed: %v", err)
	}
	if added != 0 {
		t.Errorf("expected no-op on same day, got %d logs", added)
	}
}
