package chart

import (
	"fmt"

	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/domain/billing"
	"github.com/ehi/projector/internal/domain/history"
	"github.com/ehi/projector/internal/hydrate"
	"github.com/ehi/projector/internal/platform/store"
)

// Build hydrates the stage-1 chart document into the typed model,
// resolving coded ids to display names through the run's lookup service
// and building the CSN and order-id indices.
func Build(doc store.Row, lk *hydrate.LookupService) (*Chart, error) {
	b := &builder{lk: lk}

	p, err := b.patient(doc)
	if err != nil {
		return nil, err
	}

	c := &Chart{
		Patient:        p,
		encounterByCSN: make(map[CSN]*Encounter),
		orderByID:      make(map[int64]*Order),
	}
	for _, e := range p.Encounters {
		if _, dup := c.encounterByCSN[e.CSN]; dup {
			return nil, fmt.Errorf("chart: duplicate contact id %d", e.CSN)
		}
		c.encounterByCSN[e.CSN] = e
		for _, o := range e.Orders {
			if _, dup := c.orderByID[o.ID]; dup {
				return nil, fmt.Errorf("chart: duplicate order id %d", o.ID)
			}
			c.orderByID[o.ID] = o
		}
	}
	return c, nil
}

type builder struct {
	lk *hydrate.LookupService
}

func (b *builder) name(lk catalog.Lookup, id any) (string, error) {
	return b.lk.ResolveName(lk, id)
}

func (b *builder) patient(doc store.Row) (*Patient, error) {
	sex, err := b.name(catalog.LookupSex, doc["SEX_C"])
	if err != nil {
		return nil, err
	}
	marital, err := b.name(catalog.LookupMaritalStatus, doc["MARITAL_STATUS_C"])
	if err != nil {
		return nil, err
	}

	p := &Patient{
		ID:            doc.Str("PAT_ID"),
		Name:          doc.Str("PAT_NAME"),
		BirthDate:     doc.Str("BIRTH_DATE"),
		Sex:           sex,
		MaritalStatus: marital,
		Email:         doc.Str("EMAIL_ADDRESS"),
		Source:        doc,
	}

	for _, r := range hydrate.ChildRows(doc, catalog.FieldRace) {
		if race := r.Str("PATIENT_RACE_C"); race != "" {
			p.Race = append(p.Race, race)
		}
	}
	for _, r := range hydrate.ChildRows(doc, catalog.FieldAddressHistory) {
		p.Addresses = append(p.Addresses, Address{
			City:          r.Str("CITY"),
			State:         r.Str("STATE_C"),
			ZIP:           r.Str("ZIP"),
			EffectiveDate: r.Str("EFF_START_DATE"),
			Source:        r,
		})
	}
	for _, r := range hydrate.ChildRows(doc, catalog.FieldRelationships) {
		p.Relationships = append(p.Relationships, Relationship{
			Name:   r.Str("RELATION_NAME"),
			Type:   r.Str("PAT_REL_RELATION_C"),
			Source: r,
		})
	}

	if err := b.encounters(doc, p); err != nil {
		return nil, err
	}
	if err := b.patientCollections(doc, p); err != nil {
		return nil, err
	}
	b.messaging(doc, p)
	b.histories(doc, p)

	p.Billing = billing.BuildLedger(billingSubtree(doc))
	return p, nil
}

func (b *builder) encounters(doc store.Row, p *Patient) error {
	for _, row := range hydrate.ChildRows(doc, catalog.FieldEncounters) {
		csn, _ := row.Int64("PAT_ENC_CSN_ID")
		encType, err := b.name(catalog.LookupEncounterType, row["ENC_TYPE_C"])
		if err != nil {
			return err
		}
		dept, err := b.name(catalog.LookupDepartment, row["DEPARTMENT_ID"])
		if err != nil {
			return err
		}
		prov, err := b.name(catalog.LookupProvider, row["VISIT_PROV_ID"])
		if err != nil {
			return err
		}
		e := &Encounter{
			CSN:        CSN(csn),
			Date:       row.Str("CONTACT_DATE"),
			Type:       encType,
			Department: dept,
			Provider:   prov,
			Source:     row,
		}

		for _, dx := range hydrate.ChildRows(row, catalog.FieldDiagnoses) {
			dxID, _ := dx.Int64("DX_ID")
			name, err := b.name(catalog.LookupDiagnosis, dx["DX_ID"])
			if err != nil {
				return err
			}
			line, _ := dx.Int64("LINE")
			e.Diagnoses = append(e.Diagnoses, Diagnosis{
				DXID:    dxID,
				Name:    name,
				Line:    line,
				Primary: dx.Str("PRIMARY_DX_YN") == "Y",
				Source:  dx,
			})
		}
		for _, rv := range hydrate.ChildRows(row, catalog.FieldReasonsForVisit) {
			id, _ := rv.Int64("ENC_REASON_ID")
			e.ReasonsForVisit = append(e.ReasonsForVisit, Reason{
				ID:      id,
				Comment: rv.Str("COMMENTS"),
				Source:  rv,
			})
		}
		for _, tt := range hydrate.ChildRows(row, catalog.FieldTreatmentTeam) {
			provID, _ := tt.Int64("PROV_ID")
			provName, err := b.name(catalog.LookupProvider, tt["PROV_ID"])
			if err != nil {
				return err
			}
			e.TreatmentTeam = append(e.TreatmentTeam, Treatment{
				ProviderID:   provID,
				ProviderName: provName,
				Role:         tt.Str("TR_TEAM_REL_C"),
				Source:       tt,
			})
		}
		for _, note := range hydrate.ChildRows(row, catalog.FieldNotes) {
			e.Notes = append(e.Notes, b.note(note, CSN(csn)))
		}
		if err := b.orders(row, e); err != nil {
			return err
		}

		p.Encounters = append(p.Encounters, e)
	}
	return nil
}

func (b *builder) note(row store.Row, csn CSN) *Note {
	id, _ := row.Int64("NOTE_ID")
	n := &Note{
		ID:     id,
		CSN:    csn,
		Type:   row.Str("NOTE_TYPE_C"),
		Source: row,
	}
	for _, tl := range hydrate.ChildRows(row, catalog.FieldTextLines) {
		line, _ := tl.Int64("LINE")
		n.Lines = append(n.Lines, NoteLine{Line: line, Text: tl.Str("PLAIN_TEXT")})
	}
	return n
}

func (b *builder) orders(encRow store.Row, e *Encounter) error {
	for _, row := range hydrate.ChildRows(encRow, catalog.FieldOrders) {
		id, _ := row.Int64("ORDER_PROC_ID")
		proc, err := b.name(catalog.LookupProcedure, row["PROC_ID"])
		if err != nil {
			return err
		}
		status, err := b.name(catalog.LookupOrderStatus, row["ORDER_STATUS_C"])
		if err != nil {
			return err
		}
		o := &Order{
			ID:          id,
			CSN:         e.CSN,
			Description: row.Str("DESCRIPTION"),
			Procedure:   proc,
			Status:      status,
			OrderTime:   row.Str("ORDER_TIME"),
			Source:      row,
		}

		for _, res := range hydrate.ChildRows(row, catalog.FieldResults) {
			line, _ := res.Int64("LINE")
			compID, _ := res.Int64("COMPONENT_ID")
			comp, err := b.name(catalog.LookupComponent, res["COMPONENT_ID"])
			if err != nil {
				return err
			}
			o.Results = append(o.Results, Result{
				OrderID:     id,
				Line:        line,
				ComponentID: compID,
				Component:   comp,
				Value:       res.Str("ORD_VALUE"),
				Units:       res.Str("REFERENCE_UNIT"),
				Flag:        res.Str("RESULT_FLAG_C"),
				RefLow:      res.Str("REFERENCE_LOW"),
				RefHigh:     res.Str("REFERENCE_HIGH"),
				ResultDate:  res.Str("RESULT_DATE"),
				Source:      res,
			})
		}
		for _, link := range hydrate.ChildRows(row, catalog.FieldChildOrderLinks) {
			parentID, _ := link.Int64("PARENT_ORDER_ID")
			childID, _ := link.Int64("ORDER_ID")
			o.ChildLinks = append(o.ChildLinks, OrderLink{
				ParentOrderID: parentID,
				ChildOrderID:  childID,
			})
		}

		e.Orders = append(e.Orders, o)
	}
	return nil
}

func (b *builder) patientCollections(doc store.Row, p *Patient) error {
	for _, row := range hydrate.ChildRows(doc, catalog.FieldAllergies) {
		id, _ := row.Int64("ALLERGY_ID")
		recorded, _ := row.Int64("PAT_ENC_CSN_ID")
		a := &Allergy{
			ID:             id,
			Allergen:       row.Str("ALLERGEN_NAME"),
			Severity:       row.Str("SEVERITY_C"),
			NotedDate:      row.Str("DATE_NOTED"),
			RecordedDuring: recorded,
			Source:         row,
		}
		for _, r := range hydrate.ChildRows(row, catalog.FieldReactions) {
			a.Reactions = append(a.Reactions, Reaction{Name: r.Str("REACTION"), Source: r})
		}
		p.Allergies = append(p.Allergies, a)
	}

	for _, row := range hydrate.ChildRows(doc, catalog.FieldProblems) {
		id, _ := row.Int64("PROBLEM_LIST_ID")
		dxID, _ := row.Int64("DX_ID")
		name, err := b.name(catalog.LookupDiagnosis, row["DX_ID"])
		if err != nil {
			return err
		}
		pr := &Problem{
			ID:           id,
			DXID:         dxID,
			Name:         name,
			Status:       row.Str("PROBLEM_STATUS_C"),
			NotedDate:    row.Str("NOTED_DATE"),
			ResolvedDate: row.Str("RESOLVED_DATE"),
			Source:       row,
		}
		for _, u := range hydrate.ChildRows(row, catalog.FieldUpdates) {
			pr.Updates = append(pr.Updates, ProblemUpdate{
				Date:   u.Str("HX_DATE_OF_ENTRY"),
				Status: u.Str("HX_STATUS_C"),
				Source: u,
			})
		}
		p.Problems = append(p.Problems, pr)
	}

	for _, row := range hydrate.ChildRows(doc, catalog.FieldMedications) {
		id, _ := row.Int64("ORDER_MED_ID")
		name, err := b.name(catalog.LookupMedication, row["MEDICATION_ID"])
		if err != nil {
			return err
		}
		if name == "" {
			name = row.Str("DESCRIPTION")
		}
		m := &Medication{
			ID:        id,
			Name:      name,
			Sig:       row.Str("SIG"),
			StartDate: row.Str("START_DATE"),
			EndDate:   row.Str("END_DATE"),
			Source:    row,
		}
		for _, adm := range hydrate.ChildRows(row, catalog.FieldAdministrations) {
			m.Administrations = append(m.Administrations, Administration{
				Time:   adm.Str("TAKEN_TIME"),
				Action: adm.Str("MAR_ACTION_C"),
				Dose:   adm.Str("DOSE"),
				Source: adm,
			})
		}
		p.Medications = append(p.Medications, m)
	}

	for _, row := range hydrate.ChildRows(doc, catalog.FieldImmunizations) {
		id, _ := row.Int64("IMMUNE_ID")
		im := &Immunization{
			ID:     id,
			Name:   row.Str("IMMUNE_NAME"),
			Date:   row.Str("IMMUNE_DATE"),
			Source: row,
		}
		for _, adm := range hydrate.ChildRows(row, catalog.FieldAdministrations) {
			im.Administrations = append(im.Administrations, Administration{
				Time:   adm.Str("ADMIN_TIME"),
				Action: adm.Str("ROUTE_C"),
				Dose:   adm.Str("DOSE"),
				Source: adm,
			})
		}
		p.Immunizations = append(p.Immunizations, im)
	}

	return nil
}

func (b *builder) messaging(doc store.Row, p *Patient) {
	byThread := make(map[int64][]*Message)
	for _, row := range hydrate.ChildRows(doc, catalog.FieldMessages) {
		id, _ := row.Int64("MESSAGE_ID")
		threadID, _ := row.Int64("THREAD_ID")
		m := &Message{
			ID:          id,
			ThreadID:    threadID,
			Subject:     row.Str("SUBJECT"),
			CreatedTime: row.Str("CREATED_TIME"),
			Source:      row,
		}
		for _, link := range hydrate.ChildRows(row, catalog.FieldEncounterLinks) {
			if csn, ok := link.Int64("PAT_ENC_CSN_ID"); ok {
				m.LinkedCSNs = append(m.LinkedCSNs, CSN(csn))
			}
		}
		p.Messages = append(p.Messages, m)
		if threadID != 0 {
			byThread[threadID] = append(byThread[threadID], m)
		}
	}
	for _, row := range hydrate.ChildRows(doc, catalog.FieldConversations) {
		id, _ := row.Int64("THREAD_ID")
		p.Threads = append(p.Threads, &Thread{
			ID:       id,
			Subject:  row.Str("SUBJECT"),
			Messages: byThread[id],
			Source:   row,
		})
	}
}

// histories orders the raw snapshot rows into timelines by the explicit
// (contact date, own CSN) key. Both contact-id columns are provenance.
func (b *builder) histories(doc store.Row, p *Patient) {
	p.Social = history.NewTimeline(snapshots(doc, catalog.FieldSocialHistory,
		func(r store.Row) SocialHistory {
			return SocialHistory{
				TobaccoUse: r.Str("TOBACCO_USER_C"),
				AlcoholUse: r.Str("ALCOHOL_USE_C"),
				DrugUse:    r.Str("ILL_DRUG_USER_C"),
			}
		}))
	p.Surgical = history.NewTimeline(snapshots(doc, catalog.FieldSurgicalHistory,
		func(r store.Row) SurgicalHistory {
			return SurgicalHistory{
				Procedure: r.Str("PROC_NAME"),
				Date:      r.Str("SURGICAL_HX_DATE"),
				Comment:   r.Str("COMMENTS"),
			}
		}))
	p.Family = history.NewTimeline(snapshots(doc, catalog.FieldFamilyHistory,
		func(r store.Row) FamilyHistory {
			return FamilyHistory{
				Relation:  r.Str("RELATION_C"),
				Condition: r.Str("CONDITION_NAME"),
				AgeOnset:  r.Str("AGE_OF_ONSET"),
			}
		}))
}

func snapshots[T any](doc store.Row, field catalog.Field, payload func(store.Row) T) []history.Snapshot[T] {
	var out []history.Snapshot[T]
	for _, r := range hydrate.ChildRows(doc, field) {
		own, _ := r.Int64("PAT_ENC_CSN_ID")
		reviewed, _ := r.Int64("HX_LNK_ENC_CSN")
		date, _ := ParseDateTime(r.Str("CONTACT_DATE"))
		out = append(out, history.Snapshot[T]{
			Own:            history.OwnCSN(own),
			ReviewedDuring: history.ReviewedCSN(reviewed),
			Date:           date,
			Payload:        payload(r),
		})
	}
	return out
}

func billingSubtree(doc store.Row) store.Row {
	v, ok := doc[string(catalog.FieldBilling)]
	if !ok {
		return nil
	}
	subtree, _ := v.(store.Row)
	return subtree
}
