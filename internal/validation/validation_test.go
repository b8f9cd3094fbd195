package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
)

func validBundle() models.ExportBundle {
	created := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	return models.ExportBundle{
		Version: constants.BundleVersion,
		Meta: models.BundleMeta{
			ExportedAt: "2024-01-10T00:00:00Z",
			Counts:     models.BundleCounts{Habits: 1, Logs: 1},
		},
		Habits: []models.Habit{
			{ID: "h1", Name: "Water", Type: constants.HabitGood, CreatedAt: created},
		},
		Logs: []models.HabitLog{
			{ID: "l1", HabitID: "h1", Date: "2024-01-02", Completed: true, Timestamp: created, Source: constants.SourceManual},
		},
		Settings: models.DefaultSettings(),
	}
}

func TestValidateBundle_Valid(t *testing.T) {
	result := ValidateBundle(validBundle())
	if !result.Valid() {
		t.Fatalf("expected valid bundle, got: %v", result.Messages())
	}
}

func TestValidateBundle_WrongVersion(t *testing.T) {
	b := validBundle()
	b.Version = "2"

	result := ValidateBundle(b)
	if result.Valid() {
		t.Fatal("expected version error")
	}
	if !strings.Contains(result.Errors[0].Field, "version") {
		t.Errorf("error field = %s, want version", result.Errors[0].Field)
	}
}

func TestValidateBundle_DuplicateHabitID(t *testing.T) {
	b := validBundle()
	b.Habits = append(b.Habits, b.Habits[0])

	if ValidateBundle(b).Valid() {
		t.Fatal("expected duplicate habit id error")
	}
}

func TestValidateBundle_BadHabitType(t *testing.T) {
	b := validBundle()
	b.Habits[0].Type = "neutral"

	if ValidateBundle(b).Valid() {
		t.Fatal("expected habit type error")
	}
}

func TestValidateBundle_BadLogDate(t *testing.T) {
	b := validBundle()
	b.Logs[0].Date = "01/02/2024"

	if ValidateBundle(b).Valid() {
		t.Fatal("expected date format error")
	}
}

func TestValidateBundle_DuplicateLogPair(t *testing.T) {
	b := validBundle()
	dup := b.Logs[0]
	dup.ID = "l2"
	b.Logs = append(b.Logs, dup)

	result := ValidateBundle(b)
	if result.Valid() {
		t.Fatal("expected (habitId, date) uniqueness error")
	}
}

func TestValidateBundle_BadSource(t *testing.T) {
	b := validBundle()
	b.Logs[0].Source = "imported"

	if ValidateBundle(b).Valid() {
		t.Fatal("expected source enum error")
	}
}

func TestValidateBundle_UnknownScheduleType(t *testing.T) {
	b := validBundle()
	b.Habits[0].Schedule = &models.Schedule{Type: "lunar"}

	if ValidateBundle(b).Valid() {
		t.Fatal("expected schedule type error")
	}
}

func TestValidateBundle_WeekdayOutOfRange(t *testing.T) {
	b := validBundle()
	b.Habits[0].Schedule = &models.Schedule{Type: constants.ScheduleWeekly, DaysOfWeek: []int{0, 7}}

	if ValidateBundle(b).Valid() {
		t.Fatal("expected weekday range error")
	}
}

func TestValidateBundle_BadReminderTime(t *testing.T) {
	b := validBundle()
	bad := "25:99"
	b.Settings.ReminderTime = &bad

	if ValidateBundle(b).Valid() {
		t.Fatal("expected reminder time error")
	}
}

func TestValidateBundle_CollectsAllErrors(t *testing.T) {
	b := validBundle()
	b.Version = "0"
	b.Habits[0].Name = ""
	b.Logs[0].Date = "bad"

	result := ValidateBundle(b)
	if len(result.Errors) < 3 {
		t.Errorf("expected every error collected, got %d: %v", len(result.Errors), result.Messages())
	}
}

func TestFormatReport(t *testing.T) {
	b := validBundle()
	b.Habits[0].Name = ""

	report := ValidateBundle(b).FormatReport()
	if !strings.Contains(report, "habits[0].name") {
		t.Errorf("report should name the failing field, got: %s", report)
	}
}
