package history

import (
	"testing"
	"time"
)

type socialState struct {
	Tobacco string
	Alcohol string
}

func day(d int) time.Time {
	return time.Date(2018, 10, d, 0, 0, 0, 0, time.UTC)
}

func threeSnapshots() []Snapshot[socialState] {
	return []Snapshot[socialState]{
		{Own: 10, ReviewedDuring: 0, Date: day(1), Payload: socialState{Tobacco: "Never", Alcohol: "No"}},
		{Own: 20, ReviewedDuring: 5, Date: day(2), Payload: socialState{Tobacco: "Never", Alcohol: "Yes"}},
		{Own: 30, ReviewedDuring: 0, Date: day(3), Payload: socialState{Tobacco: "Former", Alcohol: "Yes"}},
	}
}

func TestTimelineOrderEnforcedByConstruction(t *testing.T) {
	// Feed the snapshots in reverse; the timeline must still order them.
	shuffled := threeSnapshots()
	shuffled[0], shuffled[2] = shuffled[2], shuffled[0]
	tl := NewTimeline(shuffled)

	var got []OwnCSN
	for _, s := range tl.Snapshots() {
		got = append(got, s.Own)
	}
	want := []OwnCSN{10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestTimelineSameDateTiedByOwnCSN(t *testing.T) {
	tl := NewTimeline([]Snapshot[socialState]{
		{Own: 22, Date: day(1), Payload: socialState{Tobacco: "B"}},
		{Own: 11, Date: day(1), Payload: socialState{Tobacco: "A"}},
	})
	latest, ok := tl.Latest()
	if !ok || latest.Tobacco != "B" {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestLatest(t *testing.T) {
	tl := NewTimeline(threeSnapshots())
	got, ok := tl.Latest()
	if !ok || got.Tobacco != "Former" {
		t.Fatalf("latest = %+v, ok = %v", got, ok)
	}

	empty := NewTimeline[socialState](nil)
	if _, ok := empty.Latest(); ok {
		t.Error("empty timeline must report absent")
	}
}

func TestAsOfEncounter(t *testing.T) {
	tl := NewTimeline(threeSnapshots())

	// Reviewed-during match takes priority.
	got, ok := tl.AsOfEncounter(5)
	if !ok || got.Alcohol != "Yes" || got.Tobacco != "Never" {
		t.Fatalf("asOfEncounter(5) = %+v, ok = %v", got, ok)
	}

	// Own-contact fallback.
	got, ok = tl.AsOfEncounter(30)
	if !ok || got.Tobacco != "Former" {
		t.Fatalf("asOfEncounter(30) = %+v", got)
	}

	if _, ok := tl.AsOfEncounter(999); ok {
		t.Error("unknown contact must be absent")
	}
}

func TestAsOfEncounterZeroContactIsAbsent(t *testing.T) {
	// Two of the fixture snapshots carry no reviewed-during stamp. Asking
	// for contact 0 must not match the sentinel on either pass.
	tl := NewTimeline(threeSnapshots())
	if _, ok := tl.AsOfEncounter(0); ok {
		t.Error("zero contact must never match an unstamped snapshot")
	}
}

func TestAsOfDate(t *testing.T) {
	tl := NewTimeline(threeSnapshots())

	got, ok := tl.AsOfDate(day(2))
	if !ok || got.Alcohol != "Yes" || got.Tobacco != "Never" {
		t.Fatalf("asOfDate(day 2) = %+v", got)
	}
	got, ok = tl.AsOfDate(day(9))
	if !ok || got.Tobacco != "Former" {
		t.Fatalf("asOfDate(day 9) = %+v", got)
	}
	if _, ok := tl.AsOfDate(day(1).AddDate(0, 0, -1)); ok {
		t.Error("date before first snapshot must be absent")
	}
}

func TestCollapseKeepsChangesOnly(t *testing.T) {
	tl := NewTimeline([]Snapshot[socialState]{
		{Own: 10, Date: day(1), Payload: socialState{Tobacco: "Never"}},
		{Own: 20, Date: day(2), Payload: socialState{Tobacco: "Never"}},
		{Own: 30, Date: day(3), Payload: socialState{Tobacco: "Former"}},
		{Own: 40, Date: day(4), Payload: socialState{Tobacco: "Former"}},
	})
	equal := func(a, b socialState) bool { return a == b }

	kept := tl.Collapse(equal)
	if len(kept) != 2 {
		t.Fatalf("kept %d snapshots, want 2", len(kept))
	}
	// Most recent first; the first kept is always the latest snapshot.
	if kept[0].Own != 40 || kept[1].Own != 20 {
		t.Errorf("kept = %v, %v", kept[0].Own, kept[1].Own)
	}
}

func TestCollapseIdempotent(t *testing.T) {
	tl := NewTimeline(threeSnapshots())
	equal := func(a, b socialState) bool { return a == b }

	once := tl.Collapse(equal)

	// Re-running the collapse on its own output must change nothing.
	again := NewTimeline(once).Collapse(equal)
	if len(once) != len(again) {
		t.Fatalf("collapse not idempotent: %d then %d", len(once), len(again))
	}
	for i := range once {
		if once[i].Own != again[i].Own {
			t.Fatalf("collapse not idempotent at %d: %v vs %v", i, once[i].Own, again[i].Own)
		}
	}
}

func TestCollapseEmpty(t *testing.T) {
	tl := NewTimeline[socialState](nil)
	if kept := tl.Collapse(func(a, b socialState) bool { return a == b }); kept != nil {
		t.Errorf("kept = %v", kept)
	}
}
