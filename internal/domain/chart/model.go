// Package chart hydrates the stage-1 source-shaped document into the typed
// domain model: one patient owning encounters, patient-level collections,
// messaging, billing, and history timelines, with the contact-id and
// order-id indices every cross-reference accessor runs on.
package chart

import (
	"sort"
	"strings"

	"github.com/ehi/projector/internal/domain/billing"
	"github.com/ehi/projector/internal/domain/history"
	"github.com/ehi/projector/internal/platform/store"
)

// CSN is the contact serial number of one encounter: the owning contact
// id. Other entities that carry a contact id as provenance use plain
// int64 fields or history's ReviewedCSN, never this type.
type CSN int64

// Patient is the root demographic record, merged from the PATIENT splits.
type Patient struct {
	ID            string
	Name          string
	BirthDate     string
	Sex           string
	MaritalStatus string
	Email         string

	Race          []string
	Addresses     []Address
	Relationships []Relationship

	Allergies     []*Allergy
	Problems      []*Problem
	Medications   []*Medication
	Immunizations []*Immunization
	Encounters    []*Encounter

	Messages []*Message
	Threads  []*Thread

	Billing *billing.Ledger

	Social   *history.Timeline[SocialHistory]
	Surgical *history.Timeline[SurgicalHistory]
	Family   *history.Timeline[FamilyHistory]

	Source store.Row
}

// Address is one entry of the address-change history.
type Address struct {
	City          string
	State         string
	ZIP           string
	EffectiveDate string
	Source        store.Row
}

// Relationship is one patient contact/relationship row.
type Relationship struct {
	Name   string
	Type   string
	Source store.Row
}

// Encounter is a single contact event keyed by its CSN.
type Encounter struct {
	CSN        CSN
	Date       string
	Type       string
	Department string
	Provider   string

	Diagnoses       []Diagnosis
	ReasonsForVisit []Reason
	TreatmentTeam   []Treatment
	Orders          []*Order
	Notes           []*Note

	Source store.Row
}

// HasClinicalContent reports whether the encounter carries at least one of
// diagnoses, orders, reasons-for-visit, or a note with non-empty text.
// This is the sole rule separating clinical visits from system-generated
// contacts such as history-review stubs and reminders.
func (e *Encounter) HasClinicalContent() bool {
	if len(e.Diagnoses) > 0 || len(e.Orders) > 0 || len(e.ReasonsForVisit) > 0 {
		return true
	}
	for _, n := range e.Notes {
		if strings.TrimSpace(n.FullText()) != "" {
			return true
		}
	}
	return false
}

// Diagnosis is one coded encounter diagnosis.
type Diagnosis struct {
	DXID    int64
	Name    string
	Line    int64
	Primary bool
	Source  store.Row
}

// Reason is one reason-for-visit row.
type Reason struct {
	ID      int64
	Comment string
	Source  store.Row
}

// Treatment is one treatment-team membership.
type Treatment struct {
	ProviderID   int64
	ProviderName string
	Role         string
	Source       store.Row
}

// Order is a procedure order owned by exactly one encounter. Results holds
// the order's direct results only; use Chart.AllResults for the union
// across the parent-child order chain.
type Order struct {
	ID          int64
	CSN         CSN
	Description string
	Procedure   string
	Status      string
	OrderTime   string

	Results    []Result
	ChildLinks []OrderLink

	Source store.Row
}

// Result is one result component line of an order.
type Result struct {
	OrderID     int64
	Line        int64
	ComponentID int64
	Component   string
	Value       string
	Units       string
	Flag        string
	RefLow      string
	RefHigh     string
	ResultDate  string
	Source      store.Row
}

// OrderLink is a parent→child order bridge row. A self-link (parent equals
// child) means the order does not chain.
type OrderLink struct {
	ParentOrderID int64
	ChildOrderID  int64
}

// Note is a clinical note owned by an encounter; its text arrives as
// ordered fragments.
type Note struct {
	ID    int64
	CSN   CSN
	Type  string
	Lines []NoteLine

	Source store.Row
}

// NoteLine is one text fragment of a note.
type NoteLine struct {
	Line int64
	Text string
}

// FullText reconstructs the note text by concatenating the fragments in
// line order.
func (n *Note) FullText() string {
	lines := make([]NoteLine, len(n.Lines))
	copy(lines, n.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Text)
	}
	return b.String()
}

// Allergy is patient-owned. RecordedDuring is the contact the allergy was
// recorded at — provenance only, never ownership.
type Allergy struct {
	ID             int64
	Allergen       string
	Severity       string
	NotedDate      string
	RecordedDuring int64
	Reactions      []Reaction

	Source store.Row
}

// Reaction is one recorded allergy reaction.
type Reaction struct {
	Name   string
	Source store.Row
}

// Problem is one problem-list entry with its update history rows.
type Problem struct {
	ID           int64
	DXID         int64
	Name         string
	Status       string
	NotedDate    string
	ResolvedDate string
	Updates      []ProblemUpdate

	Source store.Row
}

// ProblemUpdate is one historical update of a problem-list entry.
type ProblemUpdate struct {
	Date   string
	Status string
	Source store.Row
}

// Medication is a patient-owned medication order.
type Medication struct {
	ID              int64
	Name            string
	Sig             string
	StartDate       string
	EndDate         string
	Administrations []Administration

	Source store.Row
}

// Administration is one recorded administration of a medication or
// immunization.
type Administration struct {
	Time   string
	Action string
	Dose   string
	Source store.Row
}

// Immunization is one patient-owned immunization record.
type Immunization struct {
	ID              int64
	Name            string
	Date            string
	Administrations []Administration

	Source store.Row
}

// Message is one patient portal message. LinkedCSNs comes from the
// explicit bridge table; messages are never nested inside encounters.
type Message struct {
	ID          int64
	ThreadID    int64
	Subject     string
	CreatedTime string
	LinkedCSNs  []CSN

	Source store.Row
}

// Thread is one portal conversation; its messages are resolved by thread
// id during hydration.
type Thread struct {
	ID       int64
	Subject  string
	Messages []*Message

	Source store.Row
}

// SocialHistory is the payload of one social-history snapshot.
type SocialHistory struct {
	TobaccoUse string
	AlcoholUse string
	DrugUse    string
}

// SurgicalHistory is the payload of one surgical-history snapshot.
type SurgicalHistory struct {
	Procedure string
	Date      string
	Comment   string
}

// FamilyHistory is the payload of one family-history snapshot.
type FamilyHistory struct {
	Relation  string
	Condition string
	AgeOnset  string
}
