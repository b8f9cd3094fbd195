// Package bundle serializes and deserializes the full export bundle.
// Deserialization always runs the migration pipeline before validating,
// and a bundle that fails validation after migration is rejected
// outright, never partially imported.
package bundle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/migration"
	"github.com/julianstephens/habitloop/internal/models"
	"github.com/julianstephens/habitloop/internal/validation"
)

// InvalidError reports a bundle that failed schema validation after
// migration, carrying the field-level messages for display.
type InvalidError struct {
	Result validation.Result
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid export bundle: %s", strings.Join(e.Result.Messages(), "; "))
}

// New assembles an export bundle from an account's current data.
func New(habits []models.Habit, logs []models.HabitLog, settings models.Settings, now time.Time) models.ExportBundle {
	if habits == nil {
		habits = []models.Habit{}
	}
	if logs == nil {
		logs = []models.HabitLog{}
	}
	return models.ExportBundle{
		Version: constants.BundleVersion,
		Meta: models.BundleMeta{
			ExportedAt: now.UTC().Format(time.RFC3339),
			Counts:     models.BundleCounts{Habits: len(habits), Logs: len(logs)},
		},
		Habits:   habits,
		Logs:     logs,
		Settings: settings,
	}
}

// Serialize renders the bundle as deterministic, pretty-printed JSON,
// the shape written to export files and pushed to the cloud drive.
func Serialize(b models.ExportBundle) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize bundle: %w", err)
	}
	return data, nil
}

// Deserialize parses raw bundle JSON, migrates it to the current schema,
// and validates the result. now feeds migration timestamp defaults.
func Deserialize(data []byte, now time.Time) (models.ExportBundle, error) {
	var raw migration.Bundle
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.ExportBundle{}, fmt.Errorf("failed to parse bundle JSON: %w", err)
	}

	migrated, err := migration.Run(raw, now)
	if err != nil {
		return models.ExportBundle{}, err
	}

	normalized, err := json.Marshal(migrated)
	if err != nil {
		return models.ExportBundle{}, fmt.Errorf("failed to re-encode migrated bundle: %w", err)
	}

	var b models.ExportBundle
	if err := json.Unmarshal(normalized, &b); err != nil {
		return models.ExportBundle{}, fmt.Errorf("failed to decode migrated bundle: %w", err)
	}

	if result := validation.ValidateBundle(b); !result.Valid() {
		return models.ExportBundle{}, &InvalidError{Result: result}
	}

	return b, nil
}
