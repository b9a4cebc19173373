package chart

import (
	"github.com/ehi/projector/internal/domain/billing"
)

// Chart is the hydrated domain model for one patient, with the two
// indices every cross-reference accessor depends on. It is built once per
// run and read-only afterwards.
type Chart struct {
	Patient *Patient

	encounterByCSN map[CSN]*Encounter
	orderByID      map[int64]*Order
}

// Encounter returns the encounter owning the given contact id, or nil.
func (c *Chart) Encounter(csn CSN) *Encounter {
	return c.encounterByCSN[csn]
}

// Order returns the order with the given id, or nil.
func (c *Chart) Order(id int64) *Order {
	return c.orderByID[id]
}

// Visits returns the encounters that carry clinical content, in encounter
// order. History-review stubs, reminder contacts, and other
// system-generated contacts are excluded.
func (c *Chart) Visits() []*Encounter {
	var out []*Encounter
	for _, e := range c.Patient.Encounters {
		if e.HasClinicalContent() {
			out = append(out, e)
		}
	}
	return out
}

// AllResults returns the order's direct results when it has any.
// Otherwise it follows the parent-link rows to the order's child orders
// and concatenates their direct results, in link order. Self-links mean
// "no chaining" and are skipped; so are links to orders the chart does
// not know.
func (c *Chart) AllResults(o *Order) []Result {
	if len(o.Results) > 0 {
		return o.Results
	}
	var out []Result
	for _, link := range o.ChildLinks {
		if link.ChildOrderID == o.ID {
			continue
		}
		child := c.orderByID[link.ChildOrderID]
		if child == nil {
			continue
		}
		out = append(out, child.Results...)
	}
	return out
}

// FlattenResults produces the flat lab-result view across multiple
// orders, consuming AllResults per order and deduplicating by the
// (orderID, line, componentID) composite key: the same child order
// reachable from more than one place is emitted once.
func (c *Chart) FlattenResults(orders []*Order) []Result {
	type resultKey struct {
		orderID, line, componentID int64
	}
	seen := make(map[resultKey]bool)
	var out []Result
	for _, o := range orders {
		for _, r := range c.AllResults(o) {
			k := resultKey{r.OrderID, r.Line, r.ComponentID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
	}
	return out
}

// LinkedEncounters resolves a message's bridge rows against the CSN
// index; links pointing at contacts absent from this export are dropped.
func (c *Chart) LinkedEncounters(m *Message) []*Encounter {
	var out []*Encounter
	for _, csn := range m.LinkedCSNs {
		if e := c.encounterByCSN[csn]; e != nil {
			out = append(out, e)
		}
	}
	return out
}

// BillingVisit returns the professional-billing visit cross-referenced to
// the encounter, or nil.
func (c *Chart) BillingVisit(e *Encounter) *billing.Visit {
	return c.Patient.Billing.VisitByCSN(int64(e.CSN))
}

// HospitalAccount returns the hospital account whose primary contact is
// the encounter, or nil.
func (c *Chart) HospitalAccount(e *Encounter) *billing.HospitalAccount {
	return c.Patient.Billing.HospitalAccountByCSN(int64(e.CSN))
}
