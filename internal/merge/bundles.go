package merge

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
)

// RecordConflicts maps a record key ("habit:<id>" or "log:<id>") to the
// fields that remain unresolved for that record.
type RecordConflicts map[string]map[string]FieldConflict

// Bundles reconciles a local and remote export bundle against a common
// ancestor. Records present on only one side pass through unchanged; ids
// present on both run through the field-level merge. The merged bundle
// is always usable as-is (conflicted fields default to the local value),
// but when the returned conflicts map is non-empty the caller must pause
// and surface them before treating the merge as final.
//
// base may be nil (first sync, no ancestor snapshot); the merge then
// degrades to two-way.
func Bundles(local, remote, base *models.ExportBundle) (models.ExportBundle, RecordConflicts, error) {
	if local == nil || remote == nil {
		return models.ExportBundle{}, nil, fmt.Errorf("merge: local and remote bundles are both required")
	}

	conflicts := make(RecordConflicts)

	habits, err := mergeHabits(local.Habits, remote.Habits, baseHabits(base), conflicts)
	if err != nil {
		return models.ExportBundle{}, nil, err
	}

	logs, err := mergeLogs(local.Logs, remote.Logs, baseLogs(base), conflicts)
	if err != nil {
		return models.ExportBundle{}, nil, err
	}
	logs = dedupeByHabitDate(logs)

	settings, err := mergeSettings(local.Settings, remote.Settings, base)
	if err != nil {
		return models.ExportBundle{}, nil, err
	}

	merged := models.ExportBundle{
		Version: constants.BundleVersion,
		Meta: models.BundleMeta{
			ExportedAt: local.Meta.ExportedAt,
			Counts:     models.BundleCounts{Habits: len(habits), Logs: len(logs)},
		},
		Habits:   habits,
		Logs:     logs,
		Settings: settings,
	}

	if len(conflicts) == 0 {
		conflicts = nil
	}
	return merged, conflicts, nil
}

func baseHabits(base *models.ExportBundle) []models.Habit {
	if base == nil {
		return nil
	}
	return base.Habits
}

func baseLogs(base *models.ExportBundle) []models.HabitLog {
	if base == nil {
		return nil
	}
	return base.Logs
}

func mergeHabits(local, remote, base []models.Habit, conflicts RecordConflicts) ([]models.Habit, error) {
	localByID := make(map[string]models.Habit, len(local))
	for _, h := range local {
		localByID[h.ID] = h
	}
	remoteByID := make(map[string]models.Habit, len(remote))
	for _, h := range remote {
		remoteByID[h.ID] = h
	}
	baseByID := make(map[string]models.Habit, len(base))
	for _, h := range base {
		baseByID[h.ID] = h
	}

	var out []models.Habit
	for _, id := range unionIDs(keysOfHabits(localByID), keysOfHabits(remoteByID)) {
		l, hasLocal := localByID[id]
		r, hasRemote := remoteByID[id]

		// Only one side knows this record: pass through, no conflict.
		if !hasRemote {
			out = append(out, l)
			continue
		}
		if !hasLocal {
			out = append(out, r)
			continue
		}

		var basePtr *models.Habit
		if b, ok := baseByID[id]; ok {
			basePtr = &b
		}

		res, err := mergeRecords(&l, &r, basePtr)
		if err != nil {
			return nil, fmt.Errorf("merge habit %s: %w", id, err)
		}
		var merged models.Habit
		if err := fromRecord(res.Merged, &merged); err != nil {
			return nil, fmt.Errorf("merge habit %s: %w", id, err)
		}
		out = append(out, merged)

		if res.Conflict {
			conflicts["habit:"+id] = res.Conflicts
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func mergeLogs(local, remote, base []models.HabitLog, conflicts RecordConflicts) ([]models.HabitLog, error) {
	localByID := make(map[string]models.HabitLog, len(local))
	for _, l := range local {
		localByID[l.ID] = l
	}
	remoteByID := make(map[string]models.HabitLog, len(remote))
	for _, l := range remote {
		remoteByID[l.ID] = l
	}
	baseByID := make(map[string]models.HabitLog, len(base))
	for _, l := range base {
		baseByID[l.ID] = l
	}

	var out []models.HabitLog
	for _, id := range unionIDs(keysOfLogs(localByID), keysOfLogs(remoteByID)) {
		l, hasLocal := localByID[id]
		r, hasRemote := remoteByID[id]

		if !hasRemote {
			out = append(out, l)
			continue
		}
		if !hasLocal {
			out = append(out, r)
			continue
		}

		var basePtr *models.HabitLog
		if b, ok := baseByID[id]; ok {
			basePtr = &b
		}

		res, err := mergeRecords(&l, &r, basePtr)
		if err != nil {
			return nil, fmt.Errorf("merge log %s: %w", id, err)
		}
		var merged models.HabitLog
		if err := fromRecord(res.Merged, &merged); err != nil {
			return nil, fmt.Errorf("merge log %s: %w", id, err)
		}
		out = append(out, merged)

		if res.Conflict {
			conflicts["log:"+id] = res.Conflicts
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			if out[i].HabitID == out[j].HabitID {
				return out[i].ID < out[j].ID
			}
			return out[i].HabitID < out[j].HabitID
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

// mergeSettings reuses the field ladder but swallows tie conflicts:
// settings carry no updatedAt metadata and no per-field resolution UI,
// so a tie silently keeps the local preference.
func mergeSettings(local, remote models.Settings, base *models.ExportBundle) (models.Settings, error) {
	var basePtr *models.Settings
	if base != nil {
		basePtr = &base.Settings
	}

	res, err := mergeRecords(&local, &remote, basePtr)
	if err != nil {
		return models.Settings{}, fmt.Errorf("merge settings: %w", err)
	}

	var merged models.Settings
	if err := fromRecord(res.Merged, &merged); err != nil {
		return models.Settings{}, fmt.Errorf("merge settings: %w", err)
	}
	return merged, nil
}

// dedupeByHabitDate enforces the one-log-per-(habitId, date) bundle
// invariant after merging: when two distinct ids landed on the same pair
// (each device logged the day independently), the record with the later
// updatedAt/timestamp survives, local-sorted first on a tie.
func dedupeByHabitDate(logs []models.HabitLog) []models.HabitLog {
	byPair := make(map[string]models.HabitLog)
	var order []string
	for _, log := range logs {
		key := log.HabitID + "::" + log.Date
		kept, seen := byPair[key]
		if !seen {
			byPair[key] = log
			order = append(order, key)
			continue
		}
		if logMoment(log).After(logMoment(kept)) {
			byPair[key] = log
		}
	}

	out := make([]models.HabitLog, 0, len(order))
	for _, key := range order {
		out = append(out, byPair[key])
	}
	return out
}

func logMoment(l models.HabitLog) time.Time {
	if l.UpdatedAt != nil {
		return *l.UpdatedAt
	}
	return l.Timestamp
}

// mergeRecords converts typed records to decoded-JSON maps and runs the
// field-level merge. ptrs may be nil.
func mergeRecords[T any](local, remote, base *T) (Result, error) {
	lm, err := toRecord(local)
	if err != nil {
		return Result{}, err
	}
	rm, err := toRecord(remote)
	if err != nil {
		return Result{}, err
	}
	bm, err := toRecord(base)
	if err != nil {
		return Result{}, err
	}
	return ByTimestamp(lm, rm, bm)
}

func toRecord[T any](v *T) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return m, nil
}

func fromRecord(m map[string]any, out any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode merged record: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode merged record: %w", err)
	}
	return nil
}

func keysOfHabits(m map[string]models.Habit) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func keysOfLogs(m map[string]models.HabitLog) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, id := range append(a, b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
