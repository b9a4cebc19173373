package store

import (
	"database/sql"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"
)

// SQLiteStore reads the EHI export database produced by the TSV loader:
// one SQLite table per source table, loaded in TSV row order so rowid
// preserves the original ordering.
type SQLiteStore struct {
	db      *sql.DB
	tables  []string
	columns map[string][]string
	colSet  map[string]map[string]bool
}

// OpenSQLite opens an export database read-only and discovers its table
// and column catalog up front.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open export db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping export db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		columns: make(map[string][]string),
		colSet:  make(map[string]map[string]bool),
	}
	if err := s.discover(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) discover() error {
	rows, err := s.db.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		s.tables = append(s.tables, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	sort.Strings(s.tables)

	for _, table := range s.tables {
		cols, err := s.tableInfo(table)
		if err != nil {
			return err
		}
		s.columns[table] = cols
		set := make(map[string]bool, len(cols))
		for _, c := range cols {
			set[c] = true
		}
		s.colSet[table] = set
	}
	return nil
}

func (s *SQLiteStore) tableInfo(table string) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func (s *SQLiteStore) Tables() []string { return s.tables }

func (s *SQLiteStore) HasTable(name string) bool {
	_, ok := s.columns[name]
	return ok
}

func (s *SQLiteStore) Columns(name string) ([]string, error) {
	cols, ok := s.columns[name]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}
	return cols, nil
}

func (s *SQLiteStore) All(table string) ([]Row, error) {
	if !s.HasTable(table) {
		return nil, nil
	}
	return s.query(table, fmt.Sprintf(`SELECT * FROM %q ORDER BY rowid`, table))
}

func (s *SQLiteStore) Where(table, column string, value any) ([]Row, error) {
	if !s.HasTable(table) {
		return nil, nil
	}
	if !s.colSet[table][column] {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
	}
	return s.query(table,
		fmt.Sprintf(`SELECT * FROM %q WHERE %q = ? ORDER BY rowid`, table, column), value)
}

// RowCount returns the number of rows in a table; zero for an absent table.
func (s *SQLiteStore) RowCount(table string) (int64, error) {
	if !s.HasTable(table) {
		return 0, nil
	}
	var n int64
	err := s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)).Scan(&n)
	return n, err
}

func (s *SQLiteStore) query(table, q string, args ...any) ([]Row, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			switch v := vals[i].(type) {
			case []byte:
				row[c] = string(v)
			default:
				row[c] = v
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
