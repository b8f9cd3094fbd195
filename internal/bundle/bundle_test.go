package bundle

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleData() ([]models.Habit, []models.HabitLog, models.Settings) {
	created := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	habits := []models.Habit{{
		ID: "h1", Name: "Water", Type: constants.HabitGood, Streak: 2,
		CreatedAt: created, UpdatedAt: &updated, Version: 1,
	}}
	logs := []models.HabitLog{{
		ID: "l1", HabitID: "h1", Date: "2024-01-02", Completed: true,
		Timestamp: created.AddDate(0, 0, 1), Source: constants.SourceManual,
		UpdatedAt: &updated, Version: 1,
	}}
	return habits, logs, models.DefaultSettings()
}

func TestNew_Meta(t *testing.T) {
	habits, logs, settings := sampleData()

	b := New(habits, logs, settings, now)

	if b.Version != constants.BundleVersion {
		t.Errorf("version = %s, want %s", b.Version, constants.BundleVersion)
	}
	if b.Meta.Counts.Habits != 1 || b.Meta.Counts.Logs != 1 {
		t.Errorf("counts = %+v, want 1/1", b.Meta.Counts)
	}
	if b.Meta.ExportedAt != "2024-03-01T12:00:00Z" {
		t.Errorf("exportedAt = %s, want RFC3339 of now", b.Meta.ExportedAt)
	}
}

func TestNew_NilCollections(t *testing.T) {
	b := New(nil, nil, models.DefaultSettings(), now)
	if b.Habits == nil || b.Logs == nil {
		t.Error("empty collections must serialize as [] not null")
	}
}

func TestRoundTrip(t *testing.T) {
	habits, logs, settings := sampleData()
	original := New(habits, logs, settings, now)

	data, err := Serialize(original)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	decoded, err := Deserialize(data, now)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip mismatch:\noriginal: %+v\ndecoded:  %+v", original, decoded)
	}
}

func TestSerialize_PrettyPrinted(t *testing.T) {
	habits, logs, settings := sampleData()
	data, err := Serialize(New(habits, logs, settings, now))
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Error("export files should be pretty-printed for human readability")
	}
}

func TestSerialize_Deterministic(t *testing.T) {
	habits, logs, settings := sampleData()
	b := New(habits, logs, settings, now)

	first, err := Serialize(b)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	second, err := Serialize(b)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if string(first) != string(second) {
		t.Error("serialization must be deterministic")
	}
}

func TestDeserialize_MigratesLegacyBundle(t *testing.T) {
	// A bundle with no version tag records missing sync metadata.
	legacy := `{
		"meta": {"exportedAt": "2024-01-10T00:00:00Z", "counts": {"habits": 1, "logs": 1}},
		"habits": [{"id": "h1", "name": "Water", "type": "good", "streak": 0, "createdAt": "2024-01-01T08:00:00Z"}],
		"logs": [{"id": "l1", "habitId": "h1", "date": "2024-01-02", "completed": true, "timestamp": "2024-01-02T09:00:00Z"}],
		"settings": {"darkMode": false, "language": "en", "motivatorPersonality": "positive", "fullscreenMode": false}
	}`

	b, err := Deserialize([]byte(legacy), now)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if b.Version != "1" {
		t.Errorf("version = %s, want migrated \"1\"", b.Version)
	}
	if b.Habits[0].UpdatedAt == nil || !b.Habits[0].UpdatedAt.Equal(b.Habits[0].CreatedAt) {
		t.Error("habit updatedAt should default to createdAt during migration")
	}
	if b.Logs[0].UpdatedAt == nil || !b.Logs[0].UpdatedAt.Equal(b.Logs[0].Timestamp) {
		t.Error("log updatedAt should default to its timestamp during migration")
	}
	if b.Habits[0].Version != 1 {
		t.Errorf("habit version = %d, want 1", b.Habits[0].Version)
	}
}

func TestDeserialize_RejectsMalformedJSON(t *testing.T) {
	if _, err := Deserialize([]byte("{not json"), now); err == nil {
		t.Fatal("malformed JSON must be rejected")
	}
}

func TestDeserialize_RejectsInvalidBundle(t *testing.T) {
	invalid := `{
		"version": "1",
		"meta": {"exportedAt": "2024-01-10T00:00:00Z", "counts": {"habits": 1, "logs": 0}},
		"habits": [{"id": "h1", "name": "", "type": "neither", "streak": 0, "createdAt": "2024-01-01T08:00:00Z"}],
		"logs": [],
		"settings": {"language": "en"}
	}`

	_, err := Deserialize([]byte(invalid), now)
	if err == nil {
		t.Fatal("invalid bundle must be rejected after migration")
	}

	var invalidErr *InvalidError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected *InvalidError, got %T", err)
	}
	if len(invalidErr.Result.Messages()) < 2 {
		t.Errorf("expected collected field messages, got %v", invalidErr.Result.Messages())
	}
}
