package store

import (
	"fmt"
	"sort"
)

// MemStore is an in-memory Store used by tests and fixtures. Tables are
// registered with an explicit column set so that the unknown-column
// contract behaves exactly like the SQLite store.
type MemStore struct {
	rows   map[string][]Row
	colSet map[string]map[string]bool
	cols   map[string][]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		rows:   make(map[string][]Row),
		colSet: make(map[string]map[string]bool),
		cols:   make(map[string][]string),
	}
}

// AddTable registers a table with its declared columns and rows. Rows are
// kept in the order given.
func (m *MemStore) AddTable(name string, columns []string, rows ...Row) {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	m.cols[name] = columns
	m.colSet[name] = set
	m.rows[name] = rows
}

func (m *MemStore) Tables() []string {
	names := make([]string, 0, len(m.rows))
	for name := range m.rows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MemStore) HasTable(name string) bool {
	_, ok := m.rows[name]
	return ok
}

func (m *MemStore) Columns(name string) ([]string, error) {
	cols, ok := m.cols[name]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}
	return cols, nil
}

func (m *MemStore) All(table string) ([]Row, error) {
	rows := m.rows[table]
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *MemStore) Where(table, column string, value any) ([]Row, error) {
	if !m.HasTable(table) {
		return nil, nil
	}
	if !m.colSet[table][column] {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
	}
	want := Key(value)
	var out []Row
	for _, r := range m.rows[table] {
		if Key(r[column]) == want {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }
