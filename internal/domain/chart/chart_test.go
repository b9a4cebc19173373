package chart

import (
	"errors"
	"testing"

	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/domain/history"
	"github.com/ehi/projector/internal/hydrate"
	"github.com/ehi/projector/internal/platform/store"
)

func lookupStore() *store.MemStore {
	st := store.NewMemStore()
	st.AddTable("CLARITY_EDG", []string{"DX_ID", "DX_NAME"},
		store.Row{"DX_ID": int64(501), "DX_NAME": "Essential hypertension"},
	)
	st.AddTable("CLARITY_EAP", []string{"PROC_ID", "PROC_NAME"},
		store.Row{"PROC_ID": int64(301), "PROC_NAME": "CBC w/ differential"},
	)
	st.AddTable("CLARITY_SER", []string{"PROV_ID", "PROV_NAME"},
		store.Row{"PROV_ID": int64(41), "PROV_NAME": "Chen, Amy"},
	)
	st.AddTable("CLARITY_DEP", []string{"DEPARTMENT_ID", "DEPARTMENT_NAME"},
		store.Row{"DEPARTMENT_ID": int64(9), "DEPARTMENT_NAME": "Internal Medicine"},
	)
	st.AddTable("CLARITY_COMPONENT", []string{"COMPONENT_ID", "NAME"},
		store.Row{"COMPONENT_ID": int64(1100), "NAME": "Hemoglobin"},
		store.Row{"COMPONENT_ID": int64(1101), "NAME": "Hematocrit"},
	)
	st.AddTable("ZC_SEX", []string{"INTERNAL_ID", "NAME"},
		store.Row{"INTERNAL_ID": int64(2), "NAME": "Female"},
	)
	st.AddTable("ZC_DISP_ENC_TYPE", []string{"INTERNAL_ID", "NAME"},
		store.Row{"INTERNAL_ID": int64(101), "NAME": "Office Visit"},
	)
	st.AddTable("ZC_ORDER_STATUS", []string{"INTERNAL_ID", "NAME"},
		store.Row{"INTERNAL_ID": int64(5), "NAME": "Completed"},
	)
	return st
}

func rows(rs ...store.Row) []store.Row { return rs }

// chartDoc is a stage-1 document in the shape BuildChartDocument emits:
// merged rows with child row-sets nested under the declared field slots.
func chartDoc() store.Row {
	order := store.Row{
		"ORDER_PROC_ID":  int64(7001),
		"DESCRIPTION":    "CBC W DIFF",
		"PROC_ID":        int64(301),
		"ORDER_STATUS_C": int64(5),
		"ORDER_TIME":     "3/14/2023 9:30:00 AM",
		string(catalog.FieldResults): rows(
			store.Row{"ORDER_PROC_ID": int64(7001), "LINE": int64(1), "COMPONENT_ID": int64(1100), "ORD_VALUE": "13.5", "REFERENCE_UNIT": "g/dL"},
			store.Row{"ORDER_PROC_ID": int64(7001), "LINE": int64(2), "COMPONENT_ID": int64(1101), "ORD_VALUE": "40.1", "REFERENCE_UNIT": "%"},
		),
	}
	enc1 := store.Row{
		"PAT_ENC_CSN_ID": int64(100),
		"CONTACT_DATE":   "3/14/2023",
		"ENC_TYPE_C":     int64(101),
		"DEPARTMENT_ID":  int64(9),
		"VISIT_PROV_ID":  int64(41),
		string(catalog.FieldDiagnoses): rows(
			store.Row{"PAT_ENC_CSN_ID": int64(100), "DX_ID": int64(501), "LINE": int64(1), "PRIMARY_DX_YN": "Y"},
		),
		string(catalog.FieldNotes): rows(
			store.Row{
				"NOTE_ID":        int64(900),
				"PAT_ENC_CSN_ID": int64(100),
				string(catalog.FieldTextLines): rows(
					store.Row{"NOTE_ID": int64(900), "LINE": int64(2), "PLAIN_TEXT": " stable."},
					store.Row{"NOTE_ID": int64(900), "LINE": int64(1), "PLAIN_TEXT": "BP"},
				),
			},
		),
		string(catalog.FieldOrders): rows(order),
	}
	// History-review stub: no diagnoses, no orders, a note with blank text.
	enc2 := store.Row{
		"PAT_ENC_CSN_ID": int64(200),
		"CONTACT_DATE":   "4/2/2023",
		string(catalog.FieldNotes): rows(
			store.Row{
				"NOTE_ID":        int64(901),
				"PAT_ENC_CSN_ID": int64(200),
				string(catalog.FieldTextLines): rows(
					store.Row{"NOTE_ID": int64(901), "LINE": int64(1), "PLAIN_TEXT": "   "},
				),
			},
		),
	}

	return store.Row{
		"PAT_ID":     "P1",
		"PAT_NAME":   "Doe, Jane",
		"BIRTH_DATE": "2/3/1980",
		"SEX_C":      int64(2),
		string(catalog.FieldEncounters): rows(enc1, enc2),
		string(catalog.FieldAllergies): rows(
			store.Row{
				"ALLERGY_ID":     int64(61),
				"ALLERGEN_NAME":  "PENICILLIN",
				"PAT_ENC_CSN_ID": int64(100),
				string(catalog.FieldReactions): rows(
					store.Row{"ALLERGY_ID": int64(61), "REACTION": "Hives"},
				),
			},
		),
		string(catalog.FieldProblems): rows(
			store.Row{"PROBLEM_LIST_ID": int64(71), "DX_ID": int64(501), "PROBLEM_STATUS_C": "Active"},
		),
		string(catalog.FieldMessages): rows(
			store.Row{
				"MESSAGE_ID": int64(5001),
				"THREAD_ID":  int64(400),
				"SUBJECT":    "Lab question",
				string(catalog.FieldEncounterLinks): rows(
					store.Row{"MESSAGE_ID": int64(5001), "PAT_ENC_CSN_ID": int64(100)},
					store.Row{"MESSAGE_ID": int64(5001), "PAT_ENC_CSN_ID": int64(999)},
				),
			},
		),
		string(catalog.FieldConversations): rows(
			store.Row{"THREAD_ID": int64(400), "SUBJECT": "Lab question"},
		),
		string(catalog.FieldSocialHistory): rows(
			store.Row{"PAT_ID": "P1", "PAT_ENC_CSN_ID": int64(200), "HX_LNK_ENC_CSN": int64(100), "CONTACT_DATE": "4/2/2023", "TOBACCO_USER_C": "Never"},
			store.Row{"PAT_ID": "P1", "PAT_ENC_CSN_ID": int64(100), "CONTACT_DATE": "3/14/2023", "TOBACCO_USER_C": "Former"},
		),
	}
}

func buildFixture(t *testing.T) *Chart {
	t.Helper()
	c, err := Build(chartDoc(), hydrate.NewLookupService(lookupStore()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c
}

func TestBuildResolvesLookups(t *testing.T) {
	c := buildFixture(t)
	p := c.Patient

	if p.Sex != "Female" {
		t.Errorf("Sex = %q, want Female", p.Sex)
	}
	e := c.Encounter(100)
	if e == nil {
		t.Fatal("encounter 100 not indexed")
	}
	if e.Type != "Office Visit" || e.Department != "Internal Medicine" || e.Provider != "Chen, Amy" {
		t.Errorf("encounter lookups = %q/%q/%q", e.Type, e.Department, e.Provider)
	}
	if got := e.Diagnoses[0].Name; got != "Essential hypertension" {
		t.Errorf("diagnosis name = %q", got)
	}
	o := c.Order(7001)
	if o == nil {
		t.Fatal("order 7001 not indexed")
	}
	if o.Procedure != "CBC w/ differential" || o.Status != "Completed" {
		t.Errorf("order lookups = %q/%q", o.Procedure, o.Status)
	}
	if o.CSN != 100 {
		t.Errorf("order CSN = %d, want 100", o.CSN)
	}
	if got := o.Results[0].Component; got != "Hemoglobin" {
		t.Errorf("result component = %q", got)
	}
	if p.Problems[0].Name != "Essential hypertension" {
		t.Errorf("problem name = %q", p.Problems[0].Name)
	}
}

func TestBuildAbsentLookupTableResolvesEmpty(t *testing.T) {
	// ZC_MARITAL_STATUS is not in the fixture store; the coded value stays
	// unresolved rather than failing the build.
	doc := chartDoc()
	doc["MARITAL_STATUS_C"] = int64(1)
	c, err := Build(doc, hydrate.NewLookupService(lookupStore()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.Patient.MaritalStatus != "" {
		t.Errorf("MaritalStatus = %q, want empty", c.Patient.MaritalStatus)
	}
}

func TestVisitsExcludeContentlessContacts(t *testing.T) {
	c := buildFixture(t)

	visits := c.Visits()
	if len(visits) != 1 || visits[0].CSN != 100 {
		t.Fatalf("Visits() = %d encounters, want exactly CSN 100", len(visits))
	}

	// A reason-for-visit alone is clinical content.
	stub := c.Encounter(200)
	stub.ReasonsForVisit = append(stub.ReasonsForVisit, Reason{ID: 1, Comment: "follow-up"})
	if got := len(c.Visits()); got != 2 {
		t.Errorf("Visits() after adding reason = %d, want 2", got)
	}
}

func TestNoteFullTextConcatenatesInLineOrder(t *testing.T) {
	c := buildFixture(t)
	n := c.Encounter(100).Notes[0]
	if got := n.FullText(); got != "BP stable." {
		t.Errorf("FullText() = %q, want %q", got, "BP stable.")
	}
}

func TestAllResultsDirect(t *testing.T) {
	c := buildFixture(t)
	o := c.Order(7001)
	if got := len(c.AllResults(o)); got != 2 {
		t.Errorf("AllResults = %d results, want 2", got)
	}
}

func chainChart(t *testing.T) *Chart {
	t.Helper()
	parent := &Order{
		ID:  1,
		CSN: 10,
		ChildLinks: []OrderLink{
			{ParentOrderID: 1, ChildOrderID: 2},
			{ParentOrderID: 1, ChildOrderID: 3},
			{ParentOrderID: 1, ChildOrderID: 99}, // not in this export
		},
	}
	child2 := &Order{ID: 2, CSN: 10, Results: []Result{
		{OrderID: 2, Line: 1, ComponentID: 7},
		{OrderID: 2, Line: 2, ComponentID: 8},
	}}
	child3 := &Order{ID: 3, CSN: 10, Results: []Result{
		{OrderID: 3, Line: 1, ComponentID: 7},
	}}
	selfLinked := &Order{
		ID:         4,
		CSN:        10,
		ChildLinks: []OrderLink{{ParentOrderID: 4, ChildOrderID: 4}},
	}
	e := &Encounter{CSN: 10, Orders: []*Order{parent, child2, child3, selfLinked}}
	c := &Chart{
		Patient:        &Patient{Encounters: []*Encounter{e}},
		encounterByCSN: map[CSN]*Encounter{10: e},
		orderByID:      map[int64]*Order{1: parent, 2: child2, 3: child3, 4: selfLinked},
	}
	return c
}

func TestAllResultsFollowsChain(t *testing.T) {
	c := chainChart(t)

	if got := len(c.AllResults(c.Order(1))); got != 3 {
		t.Errorf("chained AllResults = %d, want 3", got)
	}
	// Direct results win over the chain.
	if got := len(c.AllResults(c.Order(2))); got != 2 {
		t.Errorf("direct AllResults = %d, want 2", got)
	}
	// Self-link means no chaining.
	if got := len(c.AllResults(c.Order(4))); got != 0 {
		t.Errorf("self-linked AllResults = %d, want 0", got)
	}
}

func TestFlattenResultsDeduplicates(t *testing.T) {
	c := chainChart(t)

	// Order 1 reaches orders 2 and 3 through the chain; flattening the
	// parent together with its children must emit each result once.
	flat := c.FlattenResults([]*Order{c.Order(1), c.Order(2), c.Order(3)})
	if len(flat) != 3 {
		t.Fatalf("FlattenResults = %d, want 3", len(flat))
	}
	seen := make(map[[3]int64]bool)
	for _, r := range flat {
		k := [3]int64{r.OrderID, r.Line, r.ComponentID}
		if seen[k] {
			t.Errorf("duplicate result %v", k)
		}
		seen[k] = true
	}
}

func TestLinkedEncountersDropsUnknownContacts(t *testing.T) {
	c := buildFixture(t)
	m := c.Patient.Messages[0]
	linked := c.LinkedEncounters(m)
	if len(linked) != 1 || linked[0].CSN != 100 {
		t.Fatalf("LinkedEncounters = %d, want exactly CSN 100", len(linked))
	}
}

func TestThreadsResolveMessages(t *testing.T) {
	c := buildFixture(t)
	if len(c.Patient.Threads) != 1 {
		t.Fatalf("Threads = %d, want 1", len(c.Patient.Threads))
	}
	th := c.Patient.Threads[0]
	if len(th.Messages) != 1 || th.Messages[0].ID != 5001 {
		t.Errorf("thread messages not resolved by thread id")
	}
}

func TestSocialTimelineOrderedByDate(t *testing.T) {
	c := buildFixture(t)
	tl := c.Patient.Social
	if tl.Len() != 2 {
		t.Fatalf("social timeline Len = %d, want 2", tl.Len())
	}
	snaps := tl.Snapshots()
	if snaps[0].Payload.TobaccoUse != "Former" || snaps[1].Payload.TobaccoUse != "Never" {
		t.Errorf("timeline not in date order: %+v", snaps)
	}
	if snaps[1].ReviewedDuring != history.ReviewedCSN(100) {
		t.Errorf("ReviewedDuring = %d, want 100", snaps[1].ReviewedDuring)
	}
	latest, ok := tl.Latest()
	if !ok || latest.TobaccoUse != "Never" {
		t.Errorf("Latest = %+v, %v", latest, ok)
	}
}

func TestBuildRejectsDuplicateCSN(t *testing.T) {
	doc := chartDoc()
	encs := hydrate.ChildRows(doc, catalog.FieldEncounters)
	dup := store.Row{"PAT_ENC_CSN_ID": int64(100)}
	doc[string(catalog.FieldEncounters)] = append(encs, dup)

	_, err := Build(doc, hydrate.NewLookupService(lookupStore()))
	if err == nil {
		t.Fatal("Build accepted duplicate contact id")
	}
}

func TestBuildSparseDocument(t *testing.T) {
	doc := store.Row{"PAT_ID": "P9", "PAT_NAME": "Roe, Max"}
	c, err := Build(doc, hydrate.NewLookupService(store.NewMemStore()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(c.Patient.Encounters) != 0 || c.Patient.Social.Len() != 0 {
		t.Error("sparse document produced phantom entities")
	}
	if c.Patient.Billing == nil {
		t.Error("Billing should be an empty ledger, not nil")
	}
	if c.BillingVisit(&Encounter{CSN: 1}) != nil {
		t.Error("BillingVisit on empty ledger should be nil")
	}
}

func TestParseDateTime(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"3/14/2023 9:30:00 AM", true},
		{"3/14/2023", true},
		{"2023-03-14 09:30:00", true},
		{"2023-03-14", true},
		{"", false},
		{"not a date", false},
	}
	for _, tc := range cases {
		if _, ok := ParseDateTime(tc.in); ok != tc.ok {
			t.Errorf("ParseDateTime(%q) ok = %v, want %v", tc.in, ok, tc.ok)
		}
	}
}

func TestHasClinicalContentEmptyNote(t *testing.T) {
	e := &Encounter{Notes: []*Note{{Lines: []NoteLine{{Line: 1, Text: "  \n "}}}}}
	if e.HasClinicalContent() {
		t.Error("whitespace-only note counted as clinical content")
	}
	e.Notes[0].Lines = append(e.Notes[0].Lines, NoteLine{Line: 2, Text: "seen today"})
	if !e.HasClinicalContent() {
		t.Error("non-empty note not counted as clinical content")
	}
}

func TestBuildPropagatesLookupErrors(t *testing.T) {
	st := store.NewMemStore()
	// Present lookup table missing its declared key column.
	st.AddTable("ZC_SEX", []string{"NAME"}, store.Row{"NAME": "Female"})
	doc := store.Row{"PAT_ID": "P1", "SEX_C": int64(2)}

	_, err := Build(doc, hydrate.NewLookupService(st))
	if !errors.Is(err, store.ErrUnknownColumn) {
		t.Fatalf("err = %v, want ErrUnknownColumn", err)
	}
}
