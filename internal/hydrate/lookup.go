package hydrate

import (
	"fmt"

	"github.com/ehi/projector/internal/catalog"
	"github.com/ehi/projector/internal/platform/store"
)

// LookupService resolves foreign-key ids against small dimension tables.
// Each table is loaded fully into memory on first use and resolved O(1)
// afterwards. A service is scoped to exactly one projection run; concurrent
// runs construct their own.
type LookupService struct {
	st    store.Store
	cache map[string]map[string]store.Row
}

func NewLookupService(st store.Store) *LookupService {
	return &LookupService{
		st:    st,
		cache: make(map[string]map[string]store.Row),
	}
}

// Resolve returns the dimension row keyed by id, or false when the table
// is absent from the export or carries no such key.
func (l *LookupService) Resolve(table, keyColumn string, id any) (store.Row, bool, error) {
	idx, err := l.load(table, keyColumn)
	if err != nil {
		return nil, false, err
	}
	row, ok := idx[store.Key(id)]
	return row, ok, nil
}

// ResolveName returns the display name for id through a declared lookup,
// or "" when the id or the table is absent.
func (l *LookupService) ResolveName(lk catalog.Lookup, id any) (string, error) {
	if id == nil || store.Key(id) == "" {
		return "", nil
	}
	row, ok, err := l.Resolve(lk.Table, lk.Key, id)
	if err != nil || !ok {
		return "", err
	}
	return row.Str(lk.Name), nil
}

func (l *LookupService) load(table, keyColumn string) (map[string]store.Row, error) {
	if idx, ok := l.cache[table]; ok {
		return idx, nil
	}
	idx := make(map[string]store.Row)
	if l.st.HasTable(table) {
		cols, err := l.st.Columns(table)
		if err != nil {
			return nil, err
		}
		declared := false
		for _, c := range cols {
			if c == keyColumn {
				declared = true
				break
			}
		}
		if !declared {
			return nil, fmt.Errorf("lookup %s: %w: %s", table, store.ErrUnknownColumn, keyColumn)
		}
		rows, err := l.st.All(table)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			k := store.Key(r[keyColumn])
			if _, dup := idx[k]; !dup {
				idx[k] = r
			}
		}
	}
	l.cache[table] = idx
	return idx, nil
}
