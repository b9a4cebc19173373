// Package history models versioned snapshot sequences: social, surgical,
// and family history are slowly-changing facts reviewed at points in time,
// not ordinary child rows of an encounter.
//
// Each snapshot carries two independent contact ids: the contact of the
// history-review event itself and the contact of the clinical visit it was
// reviewed during. Both are provenance stamps; neither implies ownership.
package history

import (
	"sort"
	"time"
)

// OwnCSN is the contact id of the history-review event itself.
type OwnCSN int64

// ReviewedCSN is the contact id of the clinical visit a snapshot was
// reviewed during; zero when the source row carries none. Kept as a
// distinct type from OwnCSN so the two meanings cannot be conflated.
type ReviewedCSN int64

// Snapshot is one versioned state of a slowly-changing fact.
type Snapshot[T any] struct {
	Own            OwnCSN
	ReviewedDuring ReviewedCSN
	Date           time.Time
	Payload        T
}

// Timeline is an insertion-ordered chronological sequence of snapshots.
// The constructor sorts by the explicit (Date, Own) key; the source rows
// carry no implicit order and none is ever assumed.
type Timeline[T any] struct {
	snapshots []Snapshot[T]
}

// NewTimeline builds a timeline, sorting the snapshots chronologically by
// (Date, Own). The sort is what makes Latest and AsOfDate well-defined:
// two snapshots on the same date are tied deterministically by their own
// contact id, never by source row order or payload size.
func NewTimeline[T any](snapshots []Snapshot[T]) *Timeline[T] {
	ordered := make([]Snapshot[T], len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].Own < ordered[j].Own
	})
	return &Timeline[T]{snapshots: ordered}
}

// Len returns the number of snapshots.
func (t *Timeline[T]) Len() int { return len(t.snapshots) }

// Snapshots returns the ordered snapshots, oldest first.
func (t *Timeline[T]) Snapshots() []Snapshot[T] { return t.snapshots }

// Latest returns the payload of the most recent snapshot.
func (t *Timeline[T]) Latest() (T, bool) {
	var zero T
	if len(t.snapshots) == 0 {
		return zero, false
	}
	return t.snapshots[len(t.snapshots)-1].Payload, true
}

// AsOfEncounter returns the payload of the first snapshot reviewed during
// the given contact; failing that, the first whose own contact id matches.
// Zero is the absent-stamp sentinel, not a contact id, and never matches.
func (t *Timeline[T]) AsOfEncounter(contact int64) (T, bool) {
	if contact == 0 {
		var zero T
		return zero, false
	}
	for _, s := range t.snapshots {
		if int64(s.ReviewedDuring) == contact {
			return s.Payload, true
		}
	}
	for _, s := range t.snapshots {
		if int64(s.Own) == contact {
			return s.Payload, true
		}
	}
	var zero T
	return zero, false
}

// AsOfDate returns the payload of the most recent snapshot taken on or
// before the given date.
func (t *Timeline[T]) AsOfDate(date time.Time) (T, bool) {
	for i := len(t.snapshots) - 1; i >= 0; i-- {
		if !t.snapshots[i].Date.After(date) {
			return t.snapshots[i].Payload, true
		}
	}
	var zero T
	return zero, false
}

// Collapse returns the "current + prior" view: walking most-recent-first,
// the most recent snapshot is always kept, and each older snapshot is kept
// only when its significant fields differ from the next-more-recent KEPT
// snapshot, per the given equality. The result is ordered most-recent
// first. Collapse is idempotent: collapsing its own output again changes
// nothing.
func (t *Timeline[T]) Collapse(equal func(a, b T) bool) []Snapshot[T] {
	if len(t.snapshots) == 0 {
		return nil
	}
	var kept []Snapshot[T]
	for i := len(t.snapshots) - 1; i >= 0; i-- {
		s := t.snapshots[i]
		if len(kept) == 0 || !equal(kept[len(kept)-1].Payload, s.Payload) {
			kept = append(kept, s)
		}
	}
	return kept
}
