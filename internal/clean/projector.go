// Package clean projects the hydrated chart into the consumer-facing
// document: target vocabulary, normalized dates, and a fixed top-level
// shape regardless of which source tables the export happened to carry.
package clean

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehi/projector/internal/domain/billing"
	"github.com/ehi/projector/internal/domain/chart"
	"github.com/ehi/projector/internal/domain/history"
	"github.com/ehi/projector/internal/platform/store"
)

// Mode selects the output profile. Compact prunes empty values and omits
// the raw source echo; full keeps both.
type Mode string

const (
	ModeCompact Mode = "compact"
	ModeFull    Mode = "full"
)

// ParseMode validates a mode string from config or a request parameter.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCompact, ModeFull:
		return Mode(s), nil
	case "":
		return ModeCompact, nil
	}
	return "", fmt.Errorf("clean: unknown mode %q", s)
}

// Document is the projected output tree, JSON-marshalable as-is.
type Document map[string]any

// Project walks the chart and emits the clean document. The top-level keys
// are always present; in compact mode their contents are pruned of nulls,
// empty strings, and empty collections.
func Project(c *chart.Chart, mode Mode) Document {
	p := projector{mode: mode, chart: c}

	doc := Document{
		"demographics":    p.demographics(),
		"allergies":       p.allergies(),
		"problems":        p.problems(),
		"medications":     p.medications(),
		"immunizations":   p.immunizations(),
		"visits":          p.visits(),
		"labResults":      p.labResults(),
		"socialHistory":   p.socialHistory(),
		"surgicalHistory": p.surgicalHistory(),
		"familyHistory":   p.familyHistory(),
		"messages":        p.messages(),
		"billing":         p.billing(),
	}
	if mode == ModeCompact {
		for k, v := range doc {
			doc[k] = prune(v)
		}
	}
	return doc
}

type projector struct {
	mode  Mode
	chart *chart.Chart
}

// Date normalizes a source date string: date-only ISO when the time
// component is midnight, RFC 3339 otherwise. Unparseable values pass
// through unchanged so no source information is silently dropped.
func Date(s string) string {
	t, ok := chart.ParseDateTime(s)
	if !ok {
		return s
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func (p *projector) entity(fields map[string]any, source store.Row) map[string]any {
	if p.mode == ModeFull {
		fields["source"] = scalarEcho(source)
	}
	return fields
}

func (p *projector) demographics() map[string]any {
	pt := p.chart.Patient
	var addresses []map[string]any
	for _, a := range pt.Addresses {
		addresses = append(addresses, p.entity(map[string]any{
			"city":          a.City,
			"state":         a.State,
			"zip":           a.ZIP,
			"effectiveDate": Date(a.EffectiveDate),
		}, a.Source))
	}
	var relationships []map[string]any
	for _, r := range pt.Relationships {
		relationships = append(relationships, p.entity(map[string]any{
			"name": r.Name,
			"type": r.Type,
		}, r.Source))
	}
	return p.entity(map[string]any{
		"patientId":     pt.ID,
		"name":          pt.Name,
		"birthDate":     Date(pt.BirthDate),
		"sex":           pt.Sex,
		"maritalStatus": pt.MaritalStatus,
		"email":         pt.Email,
		"race":          pt.Race,
		"addresses":     addresses,
		"relationships": relationships,
	}, pt.Source)
}

func (p *projector) allergies() []map[string]any {
	var out []map[string]any
	for _, a := range p.chart.Patient.Allergies {
		var reactions []string
		for _, r := range a.Reactions {
			reactions = append(reactions, r.Name)
		}
		out = append(out, p.entity(map[string]any{
			"allergen":  a.Allergen,
			"severity":  a.Severity,
			"notedDate": Date(a.NotedDate),
			"reactions": reactions,
		}, a.Source))
	}
	return out
}

func (p *projector) problems() []map[string]any {
	var out []map[string]any
	for _, pr := range p.chart.Patient.Problems {
		var updates []map[string]any
		for _, u := range pr.Updates {
			updates = append(updates, p.entity(map[string]any{
				"date":   Date(u.Date),
				"status": u.Status,
			}, u.Source))
		}
		out = append(out, p.entity(map[string]any{
			"name":         pr.Name,
			"status":       pr.Status,
			"notedDate":    Date(pr.NotedDate),
			"resolvedDate": Date(pr.ResolvedDate),
			"updates":      updates,
		}, pr.Source))
	}
	return out
}

func (p *projector) medications() []map[string]any {
	var out []map[string]any
	for _, m := range p.chart.Patient.Medications {
		out = append(out, p.entity(map[string]any{
			"name":            m.Name,
			"sig":             m.Sig,
			"startDate":       Date(m.StartDate),
			"endDate":         Date(m.EndDate),
			"administrations": p.administrations(m.Administrations),
		}, m.Source))
	}
	return out
}

func (p *projector) immunizations() []map[string]any {
	var out []map[string]any
	for _, im := range p.chart.Patient.Immunizations {
		out = append(out, p.entity(map[string]any{
			"name":            im.Name,
			"date":            Date(im.Date),
			"administrations": p.administrations(im.Administrations),
		}, im.Source))
	}
	return out
}

func (p *projector) administrations(adms []chart.Administration) []map[string]any {
	var out []map[string]any
	for _, adm := range adms {
		out = append(out, p.entity(map[string]any{
			"time":   Date(adm.Time),
			"action": adm.Action,
			"dose":   adm.Dose,
		}, adm.Source))
	}
	return out
}

// visits emits only encounters classified as clinical visits. Order result
// sets come from the chain resolver, never the raw direct-results field.
func (p *projector) visits() []map[string]any {
	var out []map[string]any
	for _, e := range p.chart.Visits() {
		var diagnoses []map[string]any
		for _, d := range e.Diagnoses {
			diagnoses = append(diagnoses, p.entity(map[string]any{
				"name":    d.Name,
				"primary": d.Primary,
			}, d.Source))
		}
		var reasons []string
		for _, r := range e.ReasonsForVisit {
			reasons = append(reasons, r.Comment)
		}
		var team []map[string]any
		for _, t := range e.TreatmentTeam {
			team = append(team, p.entity(map[string]any{
				"provider": t.ProviderName,
				"role":     t.Role,
			}, t.Source))
		}
		var notes []string
		for _, n := range e.Notes {
			if text := strings.TrimSpace(n.FullText()); text != "" {
				notes = append(notes, text)
			}
		}
		var orders []map[string]any
		for _, o := range e.Orders {
			orders = append(orders, p.entity(map[string]any{
				"description": o.Description,
				"procedure":   o.Procedure,
				"status":      o.Status,
				"orderTime":   Date(o.OrderTime),
				"results":     p.results(p.chart.AllResults(o)),
			}, o.Source))
		}

		visit := map[string]any{
			"contactId":       int64(e.CSN),
			"date":            Date(e.Date),
			"type":            e.Type,
			"department":      e.Department,
			"provider":        e.Provider,
			"diagnoses":       diagnoses,
			"reasonsForVisit": reasons,
			"treatmentTeam":   team,
			"notes":           notes,
			"orders":          orders,
		}
		if bv := p.chart.BillingVisit(e); bv != nil {
			visit["billingVisitId"] = bv.ID
		}
		if ha := p.chart.HospitalAccount(e); ha != nil {
			visit["hospitalAccountId"] = ha.ID
		}
		out = append(out, p.entity(visit, e.Source))
	}
	return out
}

// labResults is the flat chart-wide lab view, deduplicated across order
// chains.
func (p *projector) labResults() []map[string]any {
	var orders []*chart.Order
	for _, e := range p.chart.Patient.Encounters {
		orders = append(orders, e.Orders...)
	}
	return p.results(p.chart.FlattenResults(orders))
}

func (p *projector) results(results []chart.Result) []map[string]any {
	var out []map[string]any
	for _, r := range results {
		out = append(out, p.entity(map[string]any{
			"orderId":    r.OrderID,
			"component":  r.Component,
			"value":      r.Value,
			"units":      r.Units,
			"flag":       r.Flag,
			"refLow":     r.RefLow,
			"refHigh":    r.RefHigh,
			"resultDate": Date(r.ResultDate),
		}, r.Source))
	}
	return out
}

func (p *projector) socialHistory() map[string]any {
	return historyView(p.chart.Patient.Social, func(s chart.SocialHistory) map[string]any {
		return map[string]any{
			"tobaccoUse": s.TobaccoUse,
			"alcoholUse": s.AlcoholUse,
			"drugUse":    s.DrugUse,
		}
	})
}

func (p *projector) surgicalHistory() map[string]any {
	return historyView(p.chart.Patient.Surgical, func(s chart.SurgicalHistory) map[string]any {
		return map[string]any{
			"procedure": s.Procedure,
			"date":      Date(s.Date),
			"comment":   s.Comment,
		}
	})
}

func (p *projector) familyHistory() map[string]any {
	return historyView(p.chart.Patient.Family, func(s chart.FamilyHistory) map[string]any {
		return map[string]any{
			"relation":  s.Relation,
			"condition": s.Condition,
			"ageOnset":  s.AgeOnset,
		}
	})
}

// historyView emits the current+prior view: the collapsed snapshots,
// most recent first, with the current state called out separately.
func historyView[T comparable](tl *history.Timeline[T], render func(T) map[string]any) map[string]any {
	view := map[string]any{}
	if current, ok := tl.Latest(); ok {
		view["current"] = render(current)
	}
	var prior []map[string]any
	for _, s := range tl.Collapse(func(a, b T) bool { return a == b }) {
		entry := render(s.Payload)
		if !s.Date.IsZero() {
			entry["asOf"] = s.Date.Format("2006-01-02")
		}
		prior = append(prior, entry)
	}
	view["history"] = prior
	return view
}

func (p *projector) messages() []map[string]any {
	var out []map[string]any
	for _, m := range p.chart.Patient.Messages {
		var linked []int64
		for _, e := range p.chart.LinkedEncounters(m) {
			linked = append(linked, int64(e.CSN))
		}
		out = append(out, p.entity(map[string]any{
			"subject":        m.Subject,
			"createdTime":    Date(m.CreatedTime),
			"threadId":       m.ThreadID,
			"linkedContacts": linked,
		}, m.Source))
	}
	return out
}

func (p *projector) billing() map[string]any {
	l := p.chart.Patient.Billing
	if l.Empty() {
		return map[string]any{}
	}

	var guarantors []map[string]any
	for _, g := range l.GuarantorAccounts {
		guarantors = append(guarantors, p.entity(map[string]any{
			"accountId":    g.ID,
			"name":         g.Name,
			"transactions": p.transactions(g.Transactions),
		}, g.Source))
	}
	var hospAccounts []map[string]any
	for _, h := range l.HospitalAccounts {
		hospAccounts = append(hospAccounts, p.entity(map[string]any{
			"accountId":      h.ID,
			"status":         h.Status,
			"primaryContact": h.PrimaryCSN,
			"transactions":   p.transactions(h.Transactions),
		}, h.Source))
	}
	var claims []map[string]any
	for _, cl := range l.Claims {
		var remits []map[string]any
		for _, r := range cl.Remittances {
			remits = append(remits, p.entity(map[string]any{
				"remittanceId": r.ID,
				"amount":       r.Amount,
			}, r.Source))
		}
		claims = append(claims, p.entity(map[string]any{
			"claimId":     cl.ID,
			"status":      cl.Status,
			"remittances": remits,
		}, cl.Source))
	}

	return map[string]any{
		"guarantorAccounts": guarantors,
		"hospitalAccounts":  hospAccounts,
		"claims":            claims,
	}
}

func (p *projector) transactions(txns []billing.Transaction) []map[string]any {
	var out []map[string]any
	for _, t := range txns {
		out = append(out, p.entity(map[string]any{
			"transactionId": t.ID,
			"type":          t.Type,
			"amount":        t.Amount,
			"postDate":      Date(t.PostDate),
		}, t.Source))
	}
	return out
}

// scalarEcho flattens a source row to its scalar columns: nested child
// row-sets never appear in the echo.
func scalarEcho(row store.Row) map[string]any {
	if row == nil {
		return nil
	}
	echo := make(map[string]any)
	for k, v := range row {
		switch v.(type) {
		case string, int64, int, float64, bool, nil:
			echo[k] = v
		}
	}
	return echo
}

// prune removes nulls, empty strings, and empty collections, recursively.
// Maps and slices are rebuilt so the input document is never mutated.
func prune(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if p := prune(val); !isEmpty(p) {
				out[k] = p
			}
		}
		return out
	case []map[string]any:
		var out []any
		for _, m := range x {
			if p := prune(m); !isEmpty(p) {
				out = append(out, p)
			}
		}
		return out
	case []any:
		var out []any
		for _, e := range x {
			if p := prune(e); !isEmpty(p) {
				out = append(out, p)
			}
		}
		return out
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case []int64:
		return len(x) == 0
	}
	return false
}
