package billing

import (
	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/platform/store"
)

// BuildLedger hydrates the billing subtree of the stage-1 chart document.
// A nil or empty subtree yields an empty ledger, never an error: exports
// without billing tables are a normal condition.
func BuildLedger(subtree store.Row) *Ledger {
	l := &Ledger{
		visitByCSN:    make(map[int64]*Visit),
		hospAcctByCSN: make(map[int64]*HospitalAccount),
	}
	if subtree == nil {
		return l
	}

	for _, row := range rowsAt(subtree, catalog.FieldGuarantorAccounts) {
		id, _ := row.Int64("ACCOUNT_ID")
		acct := &GuarantorAccount{
			ID:     id,
			Name:   row.Str("ACCOUNT_NAME"),
			Source: row,
		}
		for _, tx := range rowsAt(row, catalog.FieldTransactions) {
			acct.Transactions = append(acct.Transactions, buildTransaction(tx, "ACCOUNT_ID"))
		}
		l.GuarantorAccounts = append(l.GuarantorAccounts, acct)
	}

	for _, row := range rowsAt(subtree, catalog.FieldHospitalAccounts) {
		id, _ := row.Int64("HSP_ACCOUNT_ID")
		csn, _ := row.Int64("PRIM_ENC_CSN_ID")
		acct := &HospitalAccount{
			ID:         id,
			PrimaryCSN: csn,
			Status:     row.Str("ACCT_BILLSTS_HA_C"),
			Source:     row,
		}
		for _, tx := range rowsAt(row, catalog.FieldTransactions) {
			acct.Transactions = append(acct.Transactions, buildTransaction(tx, "HSP_ACCOUNT_ID"))
		}
		l.HospitalAccounts = append(l.HospitalAccounts, acct)
		if csn != 0 {
			if _, dup := l.hospAcctByCSN[csn]; !dup {
				l.hospAcctByCSN[csn] = acct
			}
		}
	}

	for _, row := range rowsAt(subtree, catalog.FieldBillingVisits) {
		id, _ := row.Int64("PB_VISIT_ID")
		csn, _ := row.Int64("PAT_ENC_CSN_ID")
		v := &Visit{ID: id, CSN: csn, Source: row}
		l.Visits = append(l.Visits, v)
		if csn != 0 {
			if _, dup := l.visitByCSN[csn]; !dup {
				l.visitByCSN[csn] = v
			}
		}
	}

	for _, row := range rowsAt(subtree, catalog.FieldClaims) {
		id, _ := row.Int64("CLAIM_ID")
		acctID, _ := row.Int64("ACCOUNT_ID")
		cl := &Claim{
			ID:        id,
			AccountID: acctID,
			Status:    row.Str("CLAIM_STATUS_C"),
			Source:    row,
		}
		for _, rem := range rowsAt(row, catalog.FieldRemittances) {
			remID, _ := rem.Int64("IMAGE_ID")
			amount, _ := asFloat(rem["PAID_AMOUNT"])
			cl.Remittances = append(cl.Remittances, Remittance{
				ID:      remID,
				ClaimID: id,
				Amount:  amount,
				Source:  rem,
			})
		}
		l.Claims = append(l.Claims, cl)
	}

	return l
}

func buildTransaction(row store.Row, acctColumn string) Transaction {
	id, _ := row.Int64("TX_ID")
	acctID, _ := row.Int64(acctColumn)
	amount, _ := asFloat(row["AMOUNT"])
	return Transaction{
		ID:        id,
		AccountID: acctID,
		Type:      row.Str("TX_TYPE_C"),
		Amount:    amount,
		PostDate:  row.Str("POST_DATE"),
		Source:    row,
	}
}

func rowsAt(parent store.Row, field catalog.Field) []store.Row {
	v, ok := parent[string(field)]
	if !ok {
		return nil
	}
	rows, _ := v.([]store.Row)
	return rows
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
