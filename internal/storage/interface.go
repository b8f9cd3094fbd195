package storage

import (
	"errors"

	"github.com/julianstephens/habitloop/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Provider is an account-scoped storage handle. Every operation applies
// to the account the provider was opened for; the scoping key is fixed
// at construction and never exposed to callers of the data operations.
type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// Settings
	GetSettings() (models.Settings, error)
	SaveSettings(models.Settings) error

	// Habits
	AddHabit(models.Habit) error
	GetHabit(id string) (models.Habit, error)
	GetAllHabits() ([]models.Habit, error)
	UpdateHabit(models.Habit) error
	DeleteHabit(id string) error
	// ReplaceHabits swaps the whole collection, used by import and
	// merge persistence.
	ReplaceHabits([]models.Habit) error

	// Logs. One log per (habitId, date): UpsertLog replaces any
	// existing log for the same pair.
	UpsertLog(models.HabitLog) error
	GetLog(habitID, date string) (models.HabitLog, error)
	GetLogsForHabit(habitID string) ([]models.HabitLog, error)
	GetAllLogs() ([]models.HabitLog, error)
	DeleteLog(habitID, date string) error
	ReplaceLogs([]models.HabitLog) error

	// Sync bookkeeping
	GetSyncMeta() (models.SyncMeta, error)
	SaveSyncMeta(models.SyncMeta) error
	// GetBaseSnapshot returns the last successfully synced bundle JSON,
	// or nil when no sync has completed yet.
	GetBaseSnapshot() ([]byte, error)
	SaveBaseSnapshot([]byte) error

	// Utils
	GetConfigPath() string
	Account() string
}
