// Package migration upgrades older export-bundle shapes to the current
// schema before validation. Migrations run on the raw decoded JSON so a
// bundle predating the typed schema can still be lifted into it.
//
// Steps are applied in registration order and are append-only: once a
// migration ships it is never reordered or removed, so any historical
// export file replays the same path. Every step must be idempotent;
// running the full pipeline on its own output is a no-op.
package migration

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
)

// Bundle is a raw decoded export bundle, prior to schema validation.
type Bundle = map[string]any

// Migration is a single named bundle transformation.
type Migration struct {
	Name string
	Up   func(Bundle, time.Time) (Bundle, error)
}

// registry is the ordered, append-only migration list.
var registry = []Migration{
	{Name: "0001-add-sync-meta", Up: addSyncMeta},
}

// Run applies every registered migration in order. now feeds default
// timestamps for steps that need one. A failing step aborts the pipeline;
// the caller must leave existing local data untouched in that case.
func Run(bundle Bundle, now time.Time) (Bundle, error) {
	result := bundle
	for _, m := range registry {
		var err error
		result, err = m.Up(result, now)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", m.Name, err)
		}
	}
	return result, nil
}

// Names returns the registered migration names in order, for diagnostics.
func Names() []string {
	names := make([]string, len(registry))
	for i, m := range registry {
		names[i] = m.Name
	}
	return names
}

// addSyncMeta guarantees every habit and log carries the sync metadata
// the merge engine depends on: updatedAt (defaulted from createdAt or
// timestamp), deviceId (defaulted to null), and version (defaulted to 1).
// It also ensures the bundle carries its version tag.
func addSyncMeta(bundle Bundle, now time.Time) (Bundle, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	out := cloneBundle(bundle)

	if habits, ok := out["habits"].([]any); ok {
		for i, raw := range habits {
			h, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if isEmpty(h["updatedAt"]) {
				if !isEmpty(h["createdAt"]) {
					h["updatedAt"] = h["createdAt"]
				} else {
					h["updatedAt"] = nowStr
				}
			}
			if _, present := h["deviceId"]; !present {
				h["deviceId"] = nil
			}
			if isEmpty(h["version"]) {
				h["version"] = float64(1)
			}
			habits[i] = h
		}
	}

	if logs, ok := out["logs"].([]any); ok {
		for i, raw := range logs {
			l, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if isEmpty(l["updatedAt"]) {
				if !isEmpty(l["timestamp"]) {
					l["updatedAt"] = l["timestamp"]
				} else {
					l["updatedAt"] = nowStr
				}
			}
			if _, present := l["deviceId"]; !present {
				l["deviceId"] = nil
			}
			if isEmpty(l["version"]) {
				l["version"] = float64(1)
			}
			logs[i] = l
		}
	}

	if isEmpty(out["version"]) {
		out["version"] = constants.BundleVersion
	}

	return out, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case float64:
		return t == 0
	default:
		return false
	}
}

// cloneBundle shallow-copies the top level and the habit/log record maps
// so migrations never mutate the caller's input in place.
func cloneBundle(bundle Bundle) Bundle {
	out := make(Bundle, len(bundle))
	for k, v := range bundle {
		out[k] = v
	}
	for _, key := range []string{"habits", "logs"} {
		records, ok := out[key].([]any)
		if !ok {
			continue
		}
		cloned := make([]any, len(records))
		for i, raw := range records {
			if m, ok := raw.(map[string]any); ok {
				c := make(map[string]any, len(m))
				for k, v := range m {
					c[k] = v
				}
				cloned[i] = c
			} else {
				cloned[i] = raw
			}
		}
		out[key] = cloned
	}
	return out
}
