package hydrate

import (
	"testing"

	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/platform/store"
)

// countingStore wraps a MemStore and counts full-table reads, so tests can
// assert a dimension table is loaded exactly once per run.
type countingStore struct {
	*store.MemStore
	allCalls map[string]int
}

func newCountingStore(m *store.MemStore) *countingStore {
	return &countingStore{MemStore: m, allCalls: map[string]int{}}
}

func (c *countingStore) All(table string) ([]store.Row, error) {
	c.allCalls[table]++
	return c.MemStore.All(table)
}

func TestLookupResolvesAndCaches(t *testing.T) {
	m := store.NewMemStore()
	m.AddTable("CLARITY_EDG", []string{"DX_ID", "DX_NAME"},
		store.Row{"DX_ID": int64(55), "DX_NAME": "Essential hypertension"},
		store.Row{"DX_ID": int64(56), "DX_NAME": "Type 2 diabetes"},
	)
	cs := newCountingStore(m)
	lk := NewLookupService(cs)

	for i := 0; i < 3; i++ {
		name, err := lk.ResolveName(catalog.LookupDiagnosis, int64(55))
		if err != nil {
			t.Fatal(err)
		}
		if name != "Essential hypertension" {
			t.Fatalf("name = %q", name)
		}
	}
	name, err := lk.ResolveName(catalog.LookupDiagnosis, int64(56))
	if err != nil || name != "Type 2 diabetes" {
		t.Fatalf("name = %q, err = %v", name, err)
	}
	if cs.allCalls["CLARITY_EDG"] != 1 {
		t.Errorf("dimension table loaded %d times, want 1", cs.allCalls["CLARITY_EDG"])
	}
}

func TestLookupUnknownIDIsAbsent(t *testing.T) {
	m := store.NewMemStore()
	m.AddTable("CLARITY_EDG", []string{"DX_ID", "DX_NAME"},
		store.Row{"DX_ID": int64(55), "DX_NAME": "Essential hypertension"},
	)
	lk := NewLookupService(m)

	_, ok, err := lk.Resolve("CLARITY_EDG", "DX_ID", int64(999))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown id must be absent")
	}
	name, err := lk.ResolveName(catalog.LookupDiagnosis, int64(999))
	if err != nil || name != "" {
		t.Errorf("name = %q, err = %v", name, err)
	}
}

func TestLookupAbsentTableIsEmpty(t *testing.T) {
	lk := NewLookupService(store.NewMemStore())
	name, err := lk.ResolveName(catalog.LookupProvider, int64(1))
	if err != nil {
		t.Fatalf("absent lookup table must not error: %v", err)
	}
	if name != "" {
		t.Errorf("name = %q", name)
	}
}

func TestLookupNilIDIsAbsent(t *testing.T) {
	lk := NewLookupService(store.NewMemStore())
	name, err := lk.ResolveName(catalog.LookupDiagnosis, nil)
	if err != nil || name != "" {
		t.Errorf("name = %q, err = %v", name, err)
	}
}

func TestLookupMatchesAcrossValueTypes(t *testing.T) {
	m := store.NewMemStore()
	m.AddTable("ZC_SEX", []string{"INTERNAL_ID", "NAME"},
		store.Row{"INTERNAL_ID": int64(2), "NAME": "Female"},
	)
	lk := NewLookupService(m)

	// The referencing row may carry the code as text.
	name, err := lk.ResolveName(catalog.LookupSex, "2")
	if err != nil || name != "Female" {
		t.Errorf("name = %q, err = %v", name, err)
	}
}
