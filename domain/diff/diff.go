// Package diff computes key-level differences between two secret value sets.
// Values are compared but never copied into the result.
package diff

import (
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
)

// ComputeDiff returns one entry per differing key. Added and modified keys come
// first (scan of proposed), then removed keys (scan of baseline). Callers must not
// rely on any other ordering.
func ComputeDiff(baseline, proposed map[string]string) []entity.DiffEntry {
	entries := make([]entity.DiffEntry, 0)

	for _, key := range valueobject.SortedKeys(proposed) {
		old, ok := baseline[key]
		switch {
		case !ok:
			entries = append(entries, entity.DiffEntry{Type: entity.DiffTypeAdded, Key: key})
		case old != proposed[key]:
			entries = append(entries, entity.DiffEntry{Type: entity.DiffTypeModified, Key: key})
		}
	}

	for _, key := range valueobject.SortedKeys(baseline) {
		if _, ok := proposed[key]; !ok {
			entries = append(entries, entity.DiffEntry{Type: entity.DiffTypeRemoved, Key: key})
		}
	}

	return entries
}

// Summary counts entries per diff type
func Summary(entries []entity.DiffEntry) map[entity.DiffType]int {
	counts := make(map[entity.DiffType]int, 3)
	for _, e := range entries {
		counts[e.Type]++
	}
	return counts
}
