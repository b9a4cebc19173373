// Package hydrate turns the flat relational export into the source-shaped
// chart document: it merges logically-split tables back into single rows,
// attaches structural children through the catalog registries, and resolves
// dimension ids through a per-run lookup service.
package hydrate

import (
	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/platform/store"
)

// MergeSplits returns one merged row per base-table row, in base-table
// order. Each merged row carries all base columns plus, for every split in
// declared order, the split's columns not already present: first writer
// wins, overlapping columns from later splits are dropped, never
// overwritten. A split table missing from the export is skipped silently.
func MergeSplits(st store.Store, cfg catalog.SplitConfig) ([]store.Row, error) {
	base, err := st.All(cfg.Base)
	if err != nil {
		return nil, err
	}
	return mergeInto(st, cfg, base)
}

// MergeSplitsWhere is MergeSplits restricted to base rows whose column
// equals value.
func MergeSplitsWhere(st store.Store, cfg catalog.SplitConfig, column string, value any) ([]store.Row, error) {
	base, err := st.Where(cfg.Base, column, value)
	if err != nil {
		return nil, err
	}
	return mergeInto(st, cfg, base)
}

func mergeInto(st store.Store, cfg catalog.SplitConfig, base []store.Row) ([]store.Row, error) {
	if len(base) == 0 {
		return nil, nil
	}

	// Index each split by its join key. A split is 1:1 with the base; if an
	// export ever carries duplicates, the first row in table order wins so
	// the merge stays deterministic.
	indexes := make([]map[string]store.Row, len(cfg.Splits))
	for i, sp := range cfg.Splits {
		if !st.HasTable(sp.Table) {
			continue
		}
		rows, err := st.All(sp.Table)
		if err != nil {
			return nil, err
		}
		join := cfg.Join(sp)
		idx := make(map[string]store.Row, len(rows))
		for _, r := range rows {
			k := store.Key(r[join])
			if _, dup := idx[k]; !dup {
				idx[k] = r
			}
		}
		indexes[i] = idx
	}

	out := make([]store.Row, 0, len(base))
	for _, b := range base {
		merged := b.Clone()
		key := store.Key(b[cfg.KeyColumn])
		for i := range cfg.Splits {
			if indexes[i] == nil {
				continue
			}
			srow, ok := indexes[i][key]
			if !ok {
				continue
			}
			for col, val := range srow {
				if _, exists := merged[col]; !exists {
					merged[col] = val
				}
			}
		}
		out = append(out, merged)
	}
	return out, nil
}
