// Package billing models the revenue-cycle side of the record: guarantor
// and hospital accounts, professional-billing visits, claims, and
// remittances. Billing rows cross-reference clinical encounters by contact
// or account id; they are a parallel hierarchy, never nested inside
// encounters.
package billing

import (
	"github.com/ehi/projector/internal/platform/store"
)

// Transaction is one charge, payment, or adjustment on an account.
type Transaction struct {
	ID        int64
	AccountID int64
	Type      string
	Amount    float64
	PostDate  string
	Source    store.Row
}

// GuarantorAccount is a professional-billing (guarantor) account.
type GuarantorAccount struct {
	ID           int64
	Name         string
	Transactions []Transaction
	Source       store.Row
}

// HospitalAccount groups hospital-billing activity; PrimaryCSN is the
// contact id of the admission contact, a cross-reference only.
type HospitalAccount struct {
	ID           int64
	PrimaryCSN   int64
	Status       string
	Transactions []Transaction
	Source       store.Row
}

// Visit is a professional-billing visit; CSN cross-references the clinical
// encounter it bills for.
type Visit struct {
	ID     int64
	CSN    int64
	Source store.Row
}

// Remittance is one payer remittance line against a claim.
type Remittance struct {
	ID      int64
	ClaimID int64
	Amount  float64
	Source  store.Row
}

// Claim is one submitted claim on a guarantor account.
type Claim struct {
	ID          int64
	AccountID   int64
	Status      string
	Remittances []Remittance
	Source      store.Row
}

// Ledger is the hydrated billing hierarchy for one patient, with the
// cross-reference indices used by the encounter accessors.
type Ledger struct {
	GuarantorAccounts []*GuarantorAccount
	HospitalAccounts  []*HospitalAccount
	Visits            []*Visit
	Claims            []*Claim

	visitByCSN    map[int64]*Visit
	hospAcctByCSN map[int64]*HospitalAccount
}

// VisitByCSN returns the professional-billing visit cross-referenced to
// the given clinical contact, or nil.
func (l *Ledger) VisitByCSN(csn int64) *Visit {
	if l == nil {
		return nil
	}
	return l.visitByCSN[csn]
}

// HospitalAccountByCSN returns the hospital account whose primary contact
// is the given clinical contact, or nil.
func (l *Ledger) HospitalAccountByCSN(csn int64) *HospitalAccount {
	if l == nil {
		return nil
	}
	return l.hospAcctByCSN[csn]
}

// Empty reports whether the ledger carries no billing activity at all.
func (l *Ledger) Empty() bool {
	return l == nil ||
		len(l.GuarantorAccounts) == 0 && len(l.HospitalAccounts) == 0 &&
			len(l.Visits) == 0 && len(l.Claims) == 0
}
