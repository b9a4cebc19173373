// Package store provides read-only access to the relational EHI export.
//
// The export carries one table per source entity with nullable, loosely
// typed columns and no declared foreign keys. Different export versions
// carry different table sets, so an absent table is a normal condition and
// always resolves to zero rows. An absent column on a table that IS present
// is a configuration bug and is reported as an error instead of being
// guessed around.
package store

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownColumn is returned when a query names a column the (present)
// table does not declare.
var ErrUnknownColumn = errors.New("unknown column")

// Row is one table row keyed by source column name. Values are string,
// int64, float64 or nil, as loaded from the export.
type Row map[string]any

// Store is a read-only view over the export's tables.
type Store interface {
	// Tables lists every table in the store, sorted by name.
	Tables() []string
	// HasTable reports whether the table exists in this export.
	HasTable(name string) bool
	// Columns returns the declared column set of a table, or an error if
	// the table does not exist.
	Columns(name string) ([]string, error)
	// All returns every row of a table in insertion order. An absent table
	// yields zero rows and a nil error.
	All(table string) ([]Row, error)
	// Where returns the rows whose column equals value, in insertion
	// order. An absent table yields zero rows and a nil error; an unknown
	// column on a present table yields ErrUnknownColumn.
	Where(table, column string, value any) ([]Row, error)
	Close() error
}

// Key renders a scalar value as a canonical map key, so that the same
// identifier loaded as int64 in one table and as text in another still
// matches. Integral floats collapse to their integer form.
func Key(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Str returns the value of a column as a string, or "" when the column is
// absent or null.
func (r Row) Str(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return Key(v)
}

// Int64 returns the value of a column as an int64 and whether it carried
// one. Text values holding an integer are accepted; the export's loader
// does not guarantee affinity across tables.
func (r Row) Int64(column string) (int64, bool) {
	v, ok := r[column]
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
		return 0, false
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
