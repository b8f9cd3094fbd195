package constants

import "time"

// HabitType represents the polarity of a habit
type HabitType string

// ScheduleType represents the kind of schedule attached to a habit
type ScheduleType string

// LogSource represents how a habit log entry was created
type LogSource string

// SyncState represents the current state of a sync attempt
type SyncState string

const (
	AppName            = "habitloop"
	DefaultKeyringUser = "drive-access-token"
	DefaultConfigPath  = "~/.config/habitloop/habitloop.db"
	DefaultAccount     = "local"
	Version            = "v0.2.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// BundleVersion is the current export bundle schema version tag
	BundleVersion = "1"

	// RemoteFileName is the bundle file name used on the cloud drive
	RemoteFileName = "habits-backup.json"

	// Habit Type constants
	HabitGood HabitType = "good"
	HabitBad  HabitType = "bad"

	// Schedule Type constants
	ScheduleDaily    ScheduleType = "daily"
	ScheduleInterval ScheduleType = "interval"
	ScheduleWeekly   ScheduleType = "weekly"

	// MinIntervalDays is the lower clamp for interval schedules, applied at
	// habit creation/edit time (never inside the schedule predicate)
	MinIntervalDays     = 2
	DefaultIntervalDays = 2

	// Log Source constants
	SourceManual LogSource = "manual"
	SourceAuto   LogSource = "auto"

	// StreakWalkLimit bounds the backward walk of the streak calculation
	StreakWalkLimit = 365

	// Sync States
	SyncIdle    SyncState = "idle"
	SyncPending SyncState = "pending"
	SyncPushing SyncState = "pushing"
	SyncSuccess SyncState = "success"
	SyncFailed  SyncState = "failed"

	// Sync retry policy
	SyncMaxAttempts     = 5
	SyncBaseBackoff     = 2 * time.Second
	SyncDefaultDebounce = 2500 * time.Millisecond

	// SyncSuccessWindow coalesces success notifications from rapid
	// consecutive pushes
	SyncSuccessWindow = 5 * time.Second

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "habitloop-"
	BackupFileSuffix = ".json"
)
