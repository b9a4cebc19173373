package hydrate

import (
	"errors"
	"fmt"

	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/platform/store"
)

// ErrPatientNotFound means the export has no PATIENT row for the requested
// id. The run aborts before any output is written.
var ErrPatientNotFound = errors.New("patient not found")

// BuildChartDocument assembles the stage-1 source-shaped document for one
// patient: the merged root demographic record plus nested row-sets for
// every attached child and cross-reference bridge list. The document is a
// plain JSON-marshalable tree; typed hydration happens above it.
func BuildChartDocument(st store.Store, patientID string) (store.Row, error) {
	patients, err := MergeSplitsWhere(st, catalog.PatientSplit, catalog.PatientSplit.KeyColumn, patientID)
	if err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	patient := patients[0]

	if err := AttachChildren(st, patient, patientID, catalog.PatientChildren); err != nil {
		return nil, err
	}

	if err := attachEncounters(st, patient, patientID); err != nil {
		return nil, err
	}
	if err := attachPatientCollections(st, patient, patientID); err != nil {
		return nil, err
	}
	if err := attachBilling(st, patient, patientID); err != nil {
		return nil, err
	}
	if err := attachMessaging(st, patient, patientID); err != nil {
		return nil, err
	}
	if err := attachHistories(st, patient, patientID); err != nil {
		return nil, err
	}

	return patient, nil
}

// ownedRows loads the rows of a directly-queried table scoped to one owner
// id through its declared ownership column. Every such query goes through a
// catalog.OwnerKey so that Validate covers the column before a run starts.
func ownedRows(st store.Store, owner catalog.OwnerKey, ownerID any) ([]store.Row, error) {
	return st.Where(owner.Table, owner.Column, ownerID)
}

func attachEncounters(st store.Store, patient store.Row, patientID string) error {
	encounters, err := MergeSplitsWhere(st, catalog.EncounterSplit, catalog.EncounterOwner.Column, patientID)
	if err != nil {
		return err
	}
	for _, enc := range encounters {
		csn := enc[catalog.EncounterSplit.KeyColumn]
		if err := AttachChildren(st, enc, csn, catalog.EncounterChildren); err != nil {
			return err
		}
		for _, note := range ChildRows(enc, catalog.FieldNotes) {
			if err := AttachChildren(st, note, note["NOTE_ID"], catalog.NoteChildren); err != nil {
				return err
			}
		}
		orders, err := MergeSplitsWhere(st, catalog.OrderSplit, catalog.OrderOwner.Column, csn)
		if err != nil {
			return err
		}
		for _, order := range orders {
			id := order[catalog.OrderSplit.KeyColumn]
			if err := AttachChildren(st, order, id, catalog.OrderChildren); err != nil {
				return err
			}
		}
		if len(orders) > 0 {
			enc[string(catalog.FieldOrders)] = orders
		}
	}
	if len(encounters) > 0 {
		patient[string(catalog.FieldEncounters)] = encounters
	}
	return nil
}

func attachPatientCollections(st store.Store, patient store.Row, patientID string) error {
	type collection struct {
		field catalog.Field
		load  func() ([]store.Row, error)
		key   string
		specs []catalog.ChildSpec
	}
	collections := []collection{
		{
			field: catalog.FieldAllergies,
			load:  func() ([]store.Row, error) { return ownedRows(st, catalog.AllergyOwner, patientID) },
			key:   "ALLERGY_ID",
			specs: catalog.AllergyChildren,
		},
		{
			field: catalog.FieldProblems,
			load:  func() ([]store.Row, error) { return ownedRows(st, catalog.ProblemOwner, patientID) },
			key:   "PROBLEM_LIST_ID",
			specs: catalog.ProblemChildren,
		},
		{
			field: catalog.FieldMedications,
			load: func() ([]store.Row, error) {
				return MergeSplitsWhere(st, catalog.MedicationSplit, catalog.MedicationOwner.Column, patientID)
			},
			key:   catalog.MedicationSplit.KeyColumn,
			specs: catalog.MedicationChildren,
		},
		{
			field: catalog.FieldImmunizations,
			load:  func() ([]store.Row, error) { return ownedRows(st, catalog.ImmunizationOwner, patientID) },
			key:   "IMMUNE_ID",
			specs: catalog.ImmunizationChildren,
		},
	}

	for _, c := range collections {
		rows, err := c.load()
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := AttachChildren(st, row, row[c.key], c.specs); err != nil {
				return err
			}
		}
		if len(rows) > 0 {
			patient[string(c.field)] = rows
		}
	}
	return nil
}

// attachBilling builds the parallel billing hierarchy. Billing rows
// cross-reference clinical encounters by contact or account id; they are
// grouped under their own subtree, never nested inside encounters.
func attachBilling(st store.Store, patient store.Row, patientID string) error {
	billing := store.Row{}

	guarantors, err := ownedRows(st, catalog.GuarantorOwner, patientID)
	if err != nil {
		return err
	}
	for _, acct := range guarantors {
		if err := AttachChildren(st, acct, acct["ACCOUNT_ID"], catalog.GuarantorChildren); err != nil {
			return err
		}
	}
	if len(guarantors) > 0 {
		billing[string(catalog.FieldGuarantorAccounts)] = guarantors
	}

	hospAccounts, err := MergeSplitsWhere(st, catalog.HospitalAccountSplit, catalog.HospitalAccountOwner.Column, patientID)
	if err != nil {
		return err
	}
	for _, h := range hospAccounts {
		if err := AttachChildren(st, h, h[catalog.HospitalAccountSplit.KeyColumn], catalog.HospitalAccountChildren); err != nil {
			return err
		}
	}
	if len(hospAccounts) > 0 {
		billing[string(catalog.FieldHospitalAccounts)] = hospAccounts
	}

	visits, err := ownedRows(st, catalog.BillingVisitOwner, patientID)
	if err != nil {
		return err
	}
	if len(visits) > 0 {
		billing[string(catalog.FieldBillingVisits)] = visits
	}

	claims, err := ownedRows(st, catalog.ClaimOwner, patientID)
	if err != nil {
		return err
	}
	for _, cl := range claims {
		if err := AttachChildren(st, cl, cl["CLAIM_ID"], catalog.ClaimChildren); err != nil {
			return err
		}
	}
	if len(claims) > 0 {
		billing[string(catalog.FieldClaims)] = claims
	}

	if len(billing) > 0 {
		patient[string(catalog.FieldBilling)] = billing
	}
	return nil
}

func attachMessaging(st store.Store, patient store.Row, patientID string) error {
	messages, err := ownedRows(st, catalog.MessageOwner, patientID)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if err := AttachChildren(st, msg, msg["MESSAGE_ID"], catalog.MessageChildren); err != nil {
			return err
		}
	}
	if len(messages) > 0 {
		patient[string(catalog.FieldMessages)] = messages
	}

	threads, err := ownedRows(st, catalog.ConversationOwner, patientID)
	if err != nil {
		return err
	}
	if len(threads) > 0 {
		patient[string(catalog.FieldConversations)] = threads
	}
	return nil
}

// attachHistories keeps the versioned history rows as flat row-sets in the
// stage-1 document; the domain model orders them into timelines. The two
// contact-id columns on each row are provenance stamps, not ownership.
func attachHistories(st store.Store, patient store.Row, patientID string) error {
	for field, owner := range map[catalog.Field]catalog.OwnerKey{
		catalog.FieldSocialHistory:   catalog.SocialHistoryOwner,
		catalog.FieldSurgicalHistory: catalog.SurgicalHistoryOwner,
		catalog.FieldFamilyHistory:   catalog.FamilyHistoryOwner,
	} {
		rows, err := ownedRows(st, owner, patientID)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			patient[string(field)] = rows
		}
	}
	return nil
}

// PatientIDs lists every PAT_ID in the export, in table order.
func PatientIDs(st store.Store) ([]string, error) {
	rows, err := st.All(catalog.PatientSplit.Base)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if id := r.Str(catalog.PatientSplit.KeyColumn); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
