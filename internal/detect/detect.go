// Package detect classifies polled assignments against recorded mappings.
//
// Classification is pure: it reads the poll result and the mappings of one
// source account and decides, per assignment, whether it is new, updated or
// unchanged. Nothing here touches a store.
package detect

import (
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Kind is the classification of one polled assignment.
type Kind int

const (
	// New means no mapping exists for the assignment.
	New Kind = iota
	// Updated means the assignment was modified after the recorded timestamp.
	Updated
	// Unchanged means there is nothing to do.
	Unchanged
)

func (k Kind) String() string {
	switch k {
	case New:
		return "new"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Decision is the classification of one assignment plus the mapping data the
// materializer needs.
type Decision struct {
	Kind       Kind
	Assignment schema.RawAssignment

	// InternalTaskID is set for Updated and Unchanged.
	InternalTaskID string

	// RecordedModifiedAt is the mapping's external timestamp, if any.
	RecordedModifiedAt *time.Time
}

// Classify decides what to do with each polled assignment of one source
// account.
//
// Rules:
//   - no mapping for the external id: New
//   - raw modified strictly after the recorded time, or recorded time absent
//     while raw has one: Updated
//   - anything else, including a raw assignment without a modified time:
//     Unchanged
//
// Mappings of other source accounts are ignored. The output follows input
// order. When the same external id appears more than once, only its first
// position is kept and it carries the most recently modified copy.
func Classify(sourceAccountID string, raws []schema.RawAssignment, mappings []schema.SyncMapping) []Decision {
	byExternal := make(map[string]schema.SyncMapping, len(mappings))
	for _, m := range mappings {
		if m.SourceAccountID != sourceAccountID {
			continue
		}
		byExternal[m.ExternalID] = m
	}

	deduped := Dedupe(raws)
	out := make([]Decision, 0, len(deduped))
	for _, raw := range deduped {
		m, ok := byExternal[raw.ExternalID]
		if !ok {
			out = append(out, Decision{Kind: New, Assignment: raw})
			continue
		}

		d := Decision{
			Kind:               Unchanged,
			Assignment:         raw,
			InternalTaskID:     m.InternalTaskID,
			RecordedModifiedAt: m.ExternalModifiedAt,
		}
		if isNewer(raw.ModifiedAt, m.ExternalModifiedAt) {
			d.Kind = Updated
		}
		out = append(out, d)
	}
	return out
}

// Dedupe collapses repeated external ids. Each id keeps its first position
// and the copy with the latest modified time; ties keep the earlier copy.
func Dedupe(raws []schema.RawAssignment) []schema.RawAssignment {
	index := make(map[string]int, len(raws))
	out := make([]schema.RawAssignment, 0, len(raws))
	for _, raw := range raws {
		i, seen := index[raw.ExternalID]
		if !seen {
			index[raw.ExternalID] = len(out)
			out = append(out, raw)
			continue
		}
		if isNewer(raw.ModifiedAt, out[i].ModifiedAt) {
			out[i] = raw
		}
	}
	return out
}

// Count tallies decisions by kind.
func Count(decisions []Decision) map[Kind]int {
	counts := make(map[Kind]int, 3)
	for _, d := range decisions {
		counts[d.Kind]++
	}
	return counts
}

func isNewer(candidate, recorded *time.Time) bool {
	if candidate == nil {
		return false
	}
	if recorded == nil {
		return true
	}
	return candidate.After(*recorded)
}
