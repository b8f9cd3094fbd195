// Package merge implements the three-way, field-level merge used to
// reconcile a local and remote record against a common ancestor.
//
// Per field, the decision ladder is:
//
//  1. local == remote                  -> take either, no conflict
//  2. base == local, base != remote    -> only remote changed, take remote
//  3. base == remote, base != local    -> only local changed, take local
//  4. both diverged                    -> the record with the strictly
//     later updatedAt wins; on a tie (or absent/unparseable timestamps)
//     the local value is used AND the field is surfaced as a conflict.
//
// The rule-4 tie asymmetry is deliberate: local data is never silently
// discarded, but the caller still sees the unresolved field and must
// offer the user a decision.
//
// Records are handled as decoded JSON objects (map[string]any) so the
// ladder runs over the union of keys regardless of record shape.
package merge

import (
	"errors"
	"reflect"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// ErrBothNil is returned when neither a local nor a remote record exists;
// callers must not ask for a merge of nothing.
var ErrBothNil = errors.New("merge: both local and remote records are nil")

// Side identifies one of the three inputs of a merge.
type Side string

const (
	SideBase   Side = "base"
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// FieldConflict carries all three values of a field that diverged
// concurrently, for presentation to the user.
type FieldConflict struct {
	Base   any `json:"base"`
	Local  any `json:"local"`
	Remote any `json:"remote"`
}

// Result is the outcome of merging one record.
type Result struct {
	Merged   map[string]any
	Conflict bool
	// Conflicts maps field name to the diverging values. Populated only
	// when Conflict is true.
	Conflicts map[string]FieldConflict
}

// Resolve overrides a conflicted field with the value from the chosen
// side. Unknown fields are ignored.
func (r *Result) Resolve(field string, side Side) {
	fc, ok := r.Conflicts[field]
	if !ok {
		return
	}
	switch side {
	case SideBase:
		r.Merged[field] = fc.Base
	case SideRemote:
		r.Merged[field] = fc.Remote
	default:
		r.Merged[field] = fc.Local
	}
	delete(r.Conflicts, field)
	r.Conflict = len(r.Conflicts) > 0
}

// ByTimestamp merges local and remote against base. A nil side
// short-circuits to the other with no conflict; a nil base degrades to a
// two-way merge where every divergence falls through to rule 4.
func ByTimestamp(local, remote, base map[string]any) (Result, error) {
	if local == nil && remote == nil {
		return Result{}, ErrBothNil
	}
	if local == nil {
		return Result{Merged: remote}, nil
	}
	if remote == nil {
		return Result{Merged: local}, nil
	}

	merged := make(map[string]any)
	conflicts := make(map[string]FieldConflict)

	localTS := parseTime(local["updatedAt"])
	remoteTS := parseTime(remote["updatedAt"])

	for k := range unionKeys(base, local, remote) {
		b, l, r := base[k], local[k], remote[k]

		switch {
		case deepEqual(l, r):
			merged[k] = l
		case deepEqual(b, l) && !deepEqual(b, r):
			merged[k] = r
		case deepEqual(b, r) && !deepEqual(b, l):
			merged[k] = l
		case localTS.After(remoteTS):
			merged[k] = l
		case remoteTS.After(localTS):
			merged[k] = r
		default:
			// Timestamps tie or are unavailable: keep local for
			// determinism, surface the divergence.
			conflicts[k] = FieldConflict{Base: b, Local: l, Remote: r}
			merged[k] = l
		}
	}

	// A field set to JSON null on every present side decodes as nil and
	// merges to nil; drop it so absent and null stay interchangeable.
	for k, v := range merged {
		if v == nil {
			delete(merged, k)
		}
	}

	res := Result{Merged: merged, Conflict: len(conflicts) > 0}
	if len(conflicts) > 0 {
		res.Conflicts = conflicts
	}
	return res, nil
}

func unionKeys(maps ...map[string]any) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, m := range maps {
		for k := range m {
			keys[k] = struct{}{}
		}
	}
	return keys
}

// deepEqual compares two decoded JSON values structurally.
func deepEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ha, errA := hashstructure.Hash(a, hashstructure.FormatV2, nil)
	hb, errB := hashstructure.Hash(b, hashstructure.FormatV2, nil)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return ha == hb
}

// parseTime interprets an updatedAt value from a decoded record. Returns
// the zero time when the value is absent or unparseable.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
		return time.Time{}
	case float64:
		// Epoch milliseconds from older exports.
		return time.UnixMilli(int64(t))
	default:
		return time.Time{}
	}
}
