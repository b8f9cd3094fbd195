package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitloop/internal/backup"
	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/logger"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/storage"
	"github.com/julianstephens/habitloop/internal/syncer"
)

type Context struct {
	Store    storage.Provider
	Sync     *syncer.Syncer
	Backups  *backup.Manager
	DeviceID string
}

// MarkDirty queues a sync push for a local change. Failures are logged
// rather than surfaced: sync is best-effort and never blocks an edit.
func (c *Context) MarkDirty() {
	if c.Sync == nil {
		return
	}
	if err := c.Sync.MarkDirty(); err != nil {
		logger.Warn("failed to queue sync push", "error", err)
	}
}

// StampUpdate sets the sync bookkeeping fields on a habit mutation.
func (c *Context) StampUpdate(habit *models.Habit, now time.Time) {
	habit.UpdatedAt = &now
	if c.DeviceID != "" {
		habit.DeviceID = &c.DeviceID
	}
}

// LoadDeviceID returns the stable per-device identifier, creating and
// persisting one next to the storage file on first use.
func LoadDeviceID(configPath string) (string, error) {
	path := filepath.Join(filepath.Dir(configPath), "device-id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("unable to persist device id: %w", err)
	}
	return id, nil
}

// ParseWeekdays parses a comma-separated list of weekdays into the
// 0=Sunday..6=Saturday form used by weekly schedules.
func ParseWeekdays(s string) ([]int, error) {
	dayMap := map[string]time.Weekday{
		"sun": time.Sunday, "sunday": time.Sunday,
		"mon": time.Monday, "monday": time.Monday,
		"tue": time.Tuesday, "tuesday": time.Tuesday,
		"wed": time.Wednesday, "wednesday": time.Wednesday,
		"thu": time.Thursday, "thursday": time.Thursday,
		"fri": time.Friday, "friday": time.Friday,
		"sat": time.Saturday, "saturday": time.Saturday,
	}

	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if wd, ok := dayMap[part]; ok {
			days = append(days, int(wd))
			continue
		}
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || num > 6 {
			return nil, fmt.Errorf("invalid weekday: %s", part)
		}
		days = append(days, num)
	}
	return days, nil
}

// BuildSchedule assembles a schedule from CLI flags. Interval lengths
// below the minimum are clamped here, never inside the schedule
// predicate, so synced data from other devices is evaluated as-is.
func BuildSchedule(scheduleType string, intervalDays int, daysOfWeek string) (*models.Schedule, error) {
	switch constants.ScheduleType(scheduleType) {
	case constants.ScheduleDaily:
		return &models.Schedule{Type: constants.ScheduleDaily}, nil
	case constants.ScheduleInterval:
		if intervalDays == 0 {
			intervalDays = constants.DefaultIntervalDays
		}
		if intervalDays < constants.MinIntervalDays {
			intervalDays = constants.MinIntervalDays
		}
		return &models.Schedule{Type: constants.ScheduleInterval, IntervalDays: intervalDays}, nil
	case constants.ScheduleWeekly:
		if daysOfWeek == "" {
			return nil, fmt.Errorf("weekly schedule requires --days")
		}
		days, err := ParseWeekdays(daysOfWeek)
		if err != nil {
			return nil, err
		}
		return &models.Schedule{Type: constants.ScheduleWeekly, DaysOfWeek: days}, nil
	default:
		return nil, fmt.Errorf("invalid schedule type: %s", scheduleType)
	}
}

// FormatSchedule renders a schedule for list output.
func FormatSchedule(s *models.Schedule) string {
	if s == nil {
		return "daily"
	}
	switch s.Type {
	case constants.ScheduleDaily:
		return "daily"
	case constants.ScheduleInterval:
		days := s.IntervalDays
		if days == 0 {
			days = constants.DefaultIntervalDays
		}
		return fmt.Sprintf("every %d days", days)
	case constants.ScheduleWeekly:
		if len(s.DaysOfWeek) == 0 {
			return "weekly"
		}
		var names []string
		for _, d := range s.DaysOfWeek {
			names = append(names, time.Weekday(d).String()[:3])
		}
		return fmt.Sprintf("weekly on %s", strings.Join(names, ","))
	default:
		return string(s.Type)
	}
}

// findHabit resolves a habit by id, then by exact name.
func findHabit(ctx *Context, ref string) (models.Habit, error) {
	if habit, err := ctx.Store.GetHabit(ref); err == nil {
		return habit, nil
	}

	habits, err := ctx.Store.GetAllHabits()
	if err != nil {
		return models.Habit{}, err
	}
	for _, habit := range habits {
		if strings.EqualFold(habit.Name, ref) {
			return habit, nil
		}
	}
	return models.Habit{}, fmt.Errorf("no habit matching %q", ref)
}
