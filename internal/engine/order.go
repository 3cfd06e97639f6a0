package engine

import (
	"sort"

	"github.com/roach88/fieldsync/internal/record"
)

// DefaultTier is the tier of any table without a declared dependency.
const DefaultTier = 99

// Tiers assigns a dependency tier to tables. Lower tiers replay first, so a
// parent table must have a lower tier than every table that references it.
type Tiers map[string]int

// DefaultTiers returns the built-in parent-before-child ordering.
func DefaultTiers() Tiers {
	return Tiers{
		"farms":                    1,
		"clusters":                 2,
		"cluster_lifecycle_events": 3,
	}
}

// Tier returns the tier of table, or DefaultTier if it has none.
func (t Tiers) Tier(table string) int {
	if tier, ok := t[table]; ok {
		return tier
	}
	return DefaultTier
}

// Order returns a copy of entries sorted for replay: by tier, then by
// EnqueuedAt ascending, then by EntryID so that equal stamps still order
// deterministically. The input slice is not modified.
func Order(entries []record.QueueEntry, tiers Tiers) []record.QueueEntry {
	out := make([]record.QueueEntry, len(entries))
	copy(out, entries)

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := tiers.Tier(out[i].Table), tiers.Tier(out[j].Table)
		if ti != tj {
			return ti < tj
		}
		if out[i].EnqueuedAt != out[j].EnqueuedAt {
			return out[i].EnqueuedAt < out[j].EnqueuedAt
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out
}
