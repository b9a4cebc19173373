package hydrate

import (
	"fmt"

	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/platform/store"
)

// AttachChildren resolves each ChildSpec in order and sets the matching
// child row-set on parent[spec.Field]. A spec with zero matching rows
// leaves the field absent entirely, keeping the document compact. The
// operation is idempotent: re-attaching the same specs to the same parent
// computes the same row-sets and overwrites the fields with identical
// content. A child table missing from the export resolves to zero rows; a
// misconfigured foreign-key column is an error.
func AttachChildren(st store.Store, parent store.Row, parentID any, specs []catalog.ChildSpec) error {
	for _, spec := range specs {
		rows, err := st.Where(spec.Table, spec.ForeignKey, parentID)
		if err != nil {
			return fmt.Errorf("attach %s: %w", spec.Table, err)
		}
		if len(rows) == 0 {
			continue
		}
		parent[string(spec.Field)] = rows
	}
	return nil
}

// ChildRows returns the row-set previously attached under field, or nil.
func ChildRows(parent store.Row, field catalog.Field) []store.Row {
	v, ok := parent[string(field)]
	if !ok {
		return nil
	}
	rows, _ := v.([]store.Row)
	return rows
}
