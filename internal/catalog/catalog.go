// Package catalog declares the static schema configuration of the
// projection engine: which tables are split companions of a base table,
// which child tables attach to which parent entity and under what field,
// and which dimension tables resolve coded ids to display names.
//
// Everything here is configuration, not behavior. The Validate function and
// the package tests are the contract that keeps these artifacts aligned
// with the export schema; resolvers never guess a fallback column at
// runtime.
package catalog

import (
	"fmt"

	"github.com/ehi/projector/internal/platform/store"
)

// Split names one companion table of a base table. JoinColumn is set only
// when the companion's copy of the key uses a different column name than
// the base (ORDER_PROC_2 carries ORDER_ID for ORDER_PROC's ORDER_PROC_ID);
// empty means the base key column.
type Split struct {
	Table      string
	JoinColumn string
}

// SplitConfig describes one logically-split entity: the base table, its key
// column, and its companions in merge order.
type SplitConfig struct {
	Base      string
	KeyColumn string
	Splits    []Split
}

// Join returns the effective join column of a split.
func (c SplitConfig) Join(s Split) string {
	if s.JoinColumn != "" {
		return s.JoinColumn
	}
	return c.KeyColumn
}

// Field names one structural-child slot of a parent entity. The constants
// below enumerate every known slot; attaching under anything else is a
// compile error in the registry literals rather than a silent no-op.
type Field string

// ChildSpec attaches the rows of a child table whose ForeignKey equals the
// parent's identifier under the parent's Field.
type ChildSpec struct {
	Table      string
	ForeignKey string
	Field      Field
}

// Lookup describes a dimension table resolved fully in memory: primary key
// column to display-name column.
type Lookup struct {
	Table string
	Key   string
	Name  string
}

// OwnerKey names the column that scopes a directly-queried table to its
// owning parent id. Most clinical tables hang off the patient through
// PAT_ID; procedure orders hang off their encounter through the contact
// serial number.
type OwnerKey struct {
	Table  string
	Column string
}

// Patient and its splits. PAT_ID is the stable patient identifier.
var PatientSplit = SplitConfig{
	Base:      "PATIENT",
	KeyColumn: "PAT_ID",
	Splits: []Split{
		{Table: "PATIENT_2"},
		{Table: "PATIENT_3"},
		{Table: "PATIENT_4"},
	},
}

// Encounter contacts. PAT_ENC_CSN_ID is the contact serial number (CSN),
// unique per contact across the patient's encounters.
var EncounterSplit = SplitConfig{
	Base:      "PAT_ENC",
	KeyColumn: "PAT_ENC_CSN_ID",
	Splits: []Split{
		{Table: "PAT_ENC_2"},
		{Table: "PAT_ENC_3"},
		{Table: "PAT_ENC_4"},
		{Table: "PAT_ENC_5"},
	},
}

// Procedure orders. ORDER_PROC_2 keeps the conceptual key under ORDER_ID.
var OrderSplit = SplitConfig{
	Base:      "ORDER_PROC",
	KeyColumn: "ORDER_PROC_ID",
	Splits: []Split{
		{Table: "ORDER_PROC_2", JoinColumn: "ORDER_ID"},
		{Table: "ORDER_PROC_3", JoinColumn: "ORDER_ID"},
	},
}

// Medication orders, patient-owned in the output.
var MedicationSplit = SplitConfig{
	Base:      "ORDER_MED",
	KeyColumn: "ORDER_MED_ID",
	Splits: []Split{
		{Table: "ORDER_MED_2", JoinColumn: "ORDER_ID"},
	},
}

// Hospital billing accounts.
var HospitalAccountSplit = SplitConfig{
	Base:      "HSP_ACCOUNT",
	KeyColumn: "HSP_ACCOUNT_ID",
	Splits: []Split{
		{Table: "HSP_ACCOUNT_2"},
	},
}

// SplitConfigs lists every declared split family.
var SplitConfigs = []SplitConfig{
	PatientSplit,
	EncounterSplit,
	OrderSplit,
	MedicationSplit,
	HospitalAccountSplit,
}

// Structural-child field slots, grouped by parent entity.
const (
	// Patient
	FieldRace           Field = "race"
	FieldAddressHistory Field = "addressHistory"
	FieldRelationships  Field = "relationships"

	// Encounter
	FieldDiagnoses       Field = "diagnoses"
	FieldReasonsForVisit Field = "reasonsForVisit"
	FieldTreatmentTeam   Field = "treatmentTeam"
	FieldNotes           Field = "notes"

	// Note
	FieldTextLines Field = "textLines"

	// Order
	FieldResults         Field = "results"
	FieldChildOrderLinks Field = "childOrderLinks"

	// Allergy
	FieldReactions Field = "reactions"

	// Problem
	FieldUpdates Field = "updates"

	// Medication / immunization
	FieldAdministrations Field = "administrations"

	// Billing
	FieldTransactions Field = "transactions"
	FieldRemittances  Field = "remittances"

	// Message
	FieldEncounterLinks Field = "encounterLinks"
)

// Aggregate slots set by the document builder itself rather than through a
// ChildSpec: these hold merged or nested entity sets, not raw child rows.
const (
	FieldEncounters        Field = "encounters"
	FieldOrders            Field = "orders"
	FieldAllergies         Field = "allergies"
	FieldProblems          Field = "problems"
	FieldMedications       Field = "medications"
	FieldImmunizations     Field = "immunizations"
	FieldBilling           Field = "billing"
	FieldGuarantorAccounts Field = "guarantorAccounts"
	FieldHospitalAccounts  Field = "hospitalAccounts"
	FieldBillingVisits     Field = "billingVisits"
	FieldClaims            Field = "claims"
	FieldMessages          Field = "messages"
	FieldConversations     Field = "conversations"
	FieldSocialHistory     Field = "socialHistory"
	FieldSurgicalHistory   Field = "surgicalHistory"
	FieldFamilyHistory     Field = "familyHistory"
)

// PatientChildren are the repeating sub-collections merged directly into
// the root demographic record.
var PatientChildren = []ChildSpec{
	{Table: "PATIENT_RACE", ForeignKey: "PAT_ID", Field: FieldRace},
	{Table: "PAT_ADDR_CHNG_HX", ForeignKey: "PAT_ID", Field: FieldAddressHistory},
	{Table: "PAT_RELATIONSHIPS", ForeignKey: "PAT_ID", Field: FieldRelationships},
}

// EncounterChildren attach by the encounter's CSN. Notes attach here and
// then receive their own text-line children (NoteChildren).
var EncounterChildren = []ChildSpec{
	{Table: "PAT_ENC_DX", ForeignKey: "PAT_ENC_CSN_ID", Field: FieldDiagnoses},
	{Table: "PAT_ENC_RSN_VISIT", ForeignKey: "PAT_ENC_CSN_ID", Field: FieldReasonsForVisit},
	{Table: "TREATMENT_TEAM", ForeignKey: "PAT_ENC_CSN_ID", Field: FieldTreatmentTeam},
	{Table: "HNO_INFO", ForeignKey: "PAT_ENC_CSN_ID", Field: FieldNotes},
}

// NoteChildren attach by NOTE_ID. Text lines must be concatenated in LINE
// order to reconstruct the full note text.
var NoteChildren = []ChildSpec{
	{Table: "HNO_PLAIN_TEXT", ForeignKey: "NOTE_ID", Field: FieldTextLines},
}

// OrderChildren attach by ORDER_PROC_ID. Child-order links are the bridge
// rows consumed by the order-chain resolver; a row whose ORDER_ID equals
// its PARENT_ORDER_ID means "no chaining".
var OrderChildren = []ChildSpec{
	{Table: "ORDER_RESULTS", ForeignKey: "ORDER_PROC_ID", Field: FieldResults},
	{Table: "ORDER_PARENT_INFO", ForeignKey: "PARENT_ORDER_ID", Field: FieldChildOrderLinks},
}

// AllergyChildren attach by ALLERGY_ID.
var AllergyChildren = []ChildSpec{
	{Table: "ALLERGY_REACTIONS", ForeignKey: "ALLERGY_ID", Field: FieldReactions},
}

// ProblemChildren attach by PROBLEM_LIST_ID.
var ProblemChildren = []ChildSpec{
	{Table: "PROBLEM_LIST_HX", ForeignKey: "PROBLEM_LIST_ID", Field: FieldUpdates},
}

// MedicationChildren attach by ORDER_MED_ID.
var MedicationChildren = []ChildSpec{
	{Table: "MAR_ADMIN_INFO", ForeignKey: "ORDER_MED_ID", Field: FieldAdministrations},
}

// ImmunizationChildren attach by IMMUNE_ID.
var ImmunizationChildren = []ChildSpec{
	{Table: "IMMUNZTN_ADMIN", ForeignKey: "IMMUNE_ID", Field: FieldAdministrations},
}

// GuarantorChildren attach professional-billing transactions by ACCOUNT_ID.
var GuarantorChildren = []ChildSpec{
	{Table: "ARPB_TRANSACTIONS", ForeignKey: "ACCOUNT_ID", Field: FieldTransactions},
}

// HospitalAccountChildren attach hospital-billing transactions.
var HospitalAccountChildren = []ChildSpec{
	{Table: "HSP_TRANSACTIONS", ForeignKey: "HSP_ACCOUNT_ID", Field: FieldTransactions},
}

// ClaimChildren attach remittances by CLAIM_ID.
var ClaimChildren = []ChildSpec{
	{Table: "CL_REMIT", ForeignKey: "CLAIM_ID", Field: FieldRemittances},
}

// MessageChildren attach the encounter bridge rows by MESSAGE_ID. The
// bridge rows relate a message to zero or more encounters; they are never
// surfaced as entities of their own.
var MessageChildren = []ChildSpec{
	{Table: "MYC_MESG_ENC", ForeignKey: "MESSAGE_ID", Field: FieldEncounterLinks},
}

// Registries lists every child registry for validation.
var Registries = [][]ChildSpec{
	PatientChildren,
	EncounterChildren,
	NoteChildren,
	OrderChildren,
	AllergyChildren,
	ProblemChildren,
	MedicationChildren,
	ImmunizationChildren,
	GuarantorChildren,
	HospitalAccountChildren,
	ClaimChildren,
	MessageChildren,
}

// Ownership columns used by the document builder to scope its direct
// queries. Tables that only appear as split companions or attached
// children are reached through SplitConfigs and Registries instead.
var (
	EncounterOwner       = OwnerKey{Table: "PAT_ENC", Column: "PAT_ID"}
	OrderOwner           = OwnerKey{Table: "ORDER_PROC", Column: "PAT_ENC_CSN_ID"}
	AllergyOwner         = OwnerKey{Table: "ALLERGY", Column: "PAT_ID"}
	ProblemOwner         = OwnerKey{Table: "PROBLEM_LIST", Column: "PAT_ID"}
	MedicationOwner      = OwnerKey{Table: "ORDER_MED", Column: "PAT_ID"}
	ImmunizationOwner    = OwnerKey{Table: "IMMUNE", Column: "PAT_ID"}
	GuarantorOwner       = OwnerKey{Table: "ACCOUNT", Column: "PAT_ID"}
	HospitalAccountOwner = OwnerKey{Table: "HSP_ACCOUNT", Column: "PAT_ID"}
	BillingVisitOwner    = OwnerKey{Table: "ARPB_VISITS", Column: "PAT_ID"}
	ClaimOwner           = OwnerKey{Table: "CLAIM_INFO", Column: "PAT_ID"}
	MessageOwner         = OwnerKey{Table: "MYC_MESG", Column: "PAT_ID"}
	ConversationOwner    = OwnerKey{Table: "MYC_CONVO", Column: "PAT_ID"}
	SocialHistoryOwner   = OwnerKey{Table: "SOCIAL_HX", Column: "PAT_ID"}
	SurgicalHistoryOwner = OwnerKey{Table: "SURGICAL_HX", Column: "PAT_ID"}
	FamilyHistoryOwner   = OwnerKey{Table: "FAMILY_HX", Column: "PAT_ID"}
)

// OwnerKeys lists every declared ownership column for validation.
var OwnerKeys = []OwnerKey{
	EncounterOwner,
	OrderOwner,
	AllergyOwner,
	ProblemOwner,
	MedicationOwner,
	ImmunizationOwner,
	GuarantorOwner,
	HospitalAccountOwner,
	BillingVisitOwner,
	ClaimOwner,
	MessageOwner,
	ConversationOwner,
	SocialHistoryOwner,
	SurgicalHistoryOwner,
	FamilyHistoryOwner,
}

// Dimension tables resolved through the lookup service.
var (
	LookupDiagnosis  = Lookup{Table: "CLARITY_EDG", Key: "DX_ID", Name: "DX_NAME"}
	LookupProcedure  = Lookup{Table: "CLARITY_EAP", Key: "PROC_ID", Name: "PROC_NAME"}
	LookupProvider   = Lookup{Table: "CLARITY_SER", Key: "PROV_ID", Name: "PROV_NAME"}
	LookupDepartment = Lookup{Table: "CLARITY_DEP", Key: "DEPARTMENT_ID", Name: "DEPARTMENT_NAME"}
	LookupMedication = Lookup{Table: "CLARITY_MEDICATION", Key: "MEDICATION_ID", Name: "NAME"}
	LookupComponent  = Lookup{Table: "CLARITY_COMPONENT", Key: "COMPONENT_ID", Name: "NAME"}

	// ZC_* category tables share the INTERNAL_ID/NAME shape.
	LookupSex           = Lookup{Table: "ZC_SEX", Key: "INTERNAL_ID", Name: "NAME"}
	LookupMaritalStatus = Lookup{Table: "ZC_MARITAL_STATUS", Key: "INTERNAL_ID", Name: "NAME"}
	LookupEncounterType = Lookup{Table: "ZC_DISP_ENC_TYPE", Key: "INTERNAL_ID", Name: "NAME"}
	LookupOrderStatus   = Lookup{Table: "ZC_ORDER_STATUS", Key: "INTERNAL_ID", Name: "NAME"}
)

// Lookups lists every declared dimension table for validation.
var Lookups = []Lookup{
	LookupDiagnosis,
	LookupProcedure,
	LookupProvider,
	LookupDepartment,
	LookupMedication,
	LookupComponent,
	LookupSex,
	LookupMaritalStatus,
	LookupEncounterType,
	LookupOrderStatus,
}

// Validate checks the configuration artifacts against a concrete export:
// every declared table that is present in the store must declare the
// configured key, join, foreign-key, ownership, and name columns. Absent tables are
// fine — export versions differ — but a present table missing a configured
// column means the configuration is wrong for this export and the run must
// not proceed.
func Validate(st store.Store) error {
	has := func(table, column string) (bool, error) {
		if !st.HasTable(table) {
			return true, nil
		}
		cols, err := st.Columns(table)
		if err != nil {
			return false, err
		}
		for _, c := range cols {
			if c == column {
				return true, nil
			}
		}
		return false, nil
	}

	for _, cfg := range SplitConfigs {
		ok, err := has(cfg.Base, cfg.KeyColumn)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("catalog: base table %s lacks key column %s", cfg.Base, cfg.KeyColumn)
		}
		for _, sp := range cfg.Splits {
			ok, err := has(sp.Table, cfg.Join(sp))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("catalog: split table %s lacks join column %s", sp.Table, cfg.Join(sp))
			}
		}
	}

	for _, registry := range Registries {
		for _, spec := range registry {
			ok, err := has(spec.Table, spec.ForeignKey)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("catalog: child table %s lacks foreign key %s", spec.Table, spec.ForeignKey)
			}
		}
	}

	for _, ow := range OwnerKeys {
		ok, err := has(ow.Table, ow.Column)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("catalog: table %s lacks ownership column %s", ow.Table, ow.Column)
		}
	}

	for _, lk := range Lookups {
		for _, col := range []string{lk.Key, lk.Name} {
			ok, err := has(lk.Table, col)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("catalog: lookup table %s lacks column %s", lk.Table, col)
			}
		}
	}

	return nil
}
