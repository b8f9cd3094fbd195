package cli

import (
	"fmt"
	"strconv"

	"github.com/julianstephens/habitloop/internal/utils"
)

type SettingsShowCmd struct{}

func (c *SettingsShowCmd) Run(ctx *Context) error {
	settings, err := ctx.Store.GetSettings()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	fmt.Println(titleStyle.Render("Settings"))
	fmt.Printf("  dark-mode:         %v\n", settings.DarkMode)
	fmt.Printf("  language:          %s\n", settings.Language)
	fmt.Printf("  motivator:         %s\n", settings.MotivatorPersonality)
	fmt.Printf("  auto-sync:         %v\n", settings.AutoSync)
	fmt.Printf("  reminder-enabled:  %v\n", settings.ReminderEnabled)
	if settings.ReminderTime != nil {
		fmt.Printf("  reminder-time:     %s\n", *settings.ReminderTime)
	}
	if settings.Timezone != "" {
		fmt.Printf("  timezone:          %s\n", settings.Timezone)
	}
	return nil
}

type SettingsSetCmd struct {
	Key   string `arg:"" help:"Setting key."`
	Value string `arg:"" help:"Setting value."`
}

func (c *SettingsSetCmd) Run(ctx *Context) error {
	settings, err := ctx.Store.GetSettings()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	switch c.Key {
	case "dark-mode", "auto-sync", "reminder-enabled", "fullscreen-mode", "analytics-consent":
		value, err := strconv.ParseBool(c.Value)
		if err != nil {
			return fmt.Errorf("invalid boolean value %q", c.Value)
		}
		switch c.Key {
		case "dark-mode":
			settings.DarkMode = value
		case "auto-sync":
			settings.AutoSync = value
		case "reminder-enabled":
			settings.ReminderEnabled = value
		case "fullscreen-mode":
			settings.FullscreenMode = value
		case "analytics-consent":
			settings.AnalyticsConsent = value
		}
	case "language":
		if c.Value != "en" && c.Value != "id" {
			return fmt.Errorf("unsupported language %q", c.Value)
		}
		settings.Language = c.Value
	case "motivator":
		switch c.Value {
		case "positive", "adaptive", "harsh":
			settings.MotivatorPersonality = c.Value
		default:
			return fmt.Errorf("unsupported motivator personality %q", c.Value)
		}
	case "reminder-time":
		if !utils.ValidateTimeFormat(c.Value) {
			return fmt.Errorf("invalid time %q, expected HH:MM", c.Value)
		}
		v := c.Value
		settings.ReminderTime = &v
	case "timezone":
		if _, err := utils.LoadLocation(c.Value); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Value, err)
		}
		settings.Timezone = c.Value
	default:
		return fmt.Errorf("unknown setting %q", c.Key)
	}

	if err := ctx.Store.SaveSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	ctx.MarkDirty()

	fmt.Printf("%s %s = %s\n", successStyle.Render("Set"), c.Key, c.Value)
	return nil
}
