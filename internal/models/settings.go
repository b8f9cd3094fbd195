package models

// Settings holds flat user preferences. Part of the export bundle and
// subject to the same migrate/validate pipeline as habits and logs.
type Settings struct {
	DarkMode             bool    `json:"darkMode"`
	Language             string  `json:"language"`
	MotivatorPersonality string  `json:"motivatorPersonality"`
	FullscreenMode       bool    `json:"fullscreenMode"`
	AutoSync             bool    `json:"autoSync,omitempty"`
	AnalyticsConsent     bool    `json:"analyticsConsent,omitempty"`
	ReminderEnabled      bool    `json:"reminderEnabled,omitempty"`
	// ReminderTime is "HH:MM" local time, nil when no reminder is set.
	ReminderTime *string `json:"reminderTime,omitempty"`
	// Timezone is an IANA name; empty or "Local" means the system zone.
	Timezone string `json:"timezone,omitempty"`
}

// DefaultSettings returns the settings applied to a fresh account.
func DefaultSettings() Settings {
	return Settings{
		Language:             "en",
		MotivatorPersonality: "positive",
	}
}
