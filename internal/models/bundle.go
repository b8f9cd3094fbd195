package models

import "time"

// BundleCounts records how many records a bundle carries.
type BundleCounts struct {
	Habits int `json:"habits"`
	Logs   int `json:"logs"`
}

// BundleMeta is the metadata block of an export bundle.
type BundleMeta struct {
	ExportedAt string       `json:"exportedAt"`
	Counts     BundleCounts `json:"counts"`
}

// ExportBundle is the unit of transport and backup: the full snapshot of
// one account's habits, logs, and settings, tagged with a schema version.
type ExportBundle struct {
	Version  string     `json:"version"`
	Meta     BundleMeta `json:"meta"`
	Habits   []Habit    `json:"habits"`
	Logs     []HabitLog `json:"logs"`
	Settings Settings   `json:"settings"`
}

// SyncMeta is per-account sync bookkeeping persisted alongside the data
// collections so a queued push survives a process restart.
type SyncMeta struct {
	// PendingPush is set before every push attempt and cleared only on
	// success; a push queued right before exit is retried on next launch.
	PendingPush bool `json:"pendingPush"`
	RetryCount  int  `json:"retryCount"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	// LastFinalizedDate caches the last day auto-finalization ran for,
	// so day-boundary checks skip redundant recomputation.
	LastFinalizedDate string `json:"lastFinalizedDate,omitempty"`
}
