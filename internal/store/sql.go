package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/accrt/portal/internal/model"
)

const tableName = "registros"

// SQLStore keeps the record table in a database table with one TEXT column per
// contract column and an increasing id that fixes append order.
type SQLStore struct {
	db      *sqlx.DB
	backend string
}

// OpenSQL connects with driver "sqlite" or "postgres" and creates the table
// if it does not exist yet.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver == "sqlite" && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, &ErrStoreUnavailable{Backend: driver, Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ErrStoreUnavailable{Backend: driver, Op: "open", Err: err}
	}
	if driver == "sqlite" {
		// One writer keeps appends serialized.
		db.SetMaxOpenConns(1)
	}
	s := &SQLStore{db: db, backend: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) unavailable(op string, err error) error {
	return &ErrStoreUnavailable{Backend: s.backend, Op: op, Err: err}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.backend == "postgres" {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	cols := make([]string, 0, len(Columns)+1)
	cols = append(cols, id)
	for _, c := range Columns {
		cols = append(cols, c.Name+" TEXT NOT NULL DEFAULT ''")
	}
	schema := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", tableName, strings.Join(cols, ",\n\t"))
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return s.unavailable("migrate", err)
	}

	// An existing table from an older layout lacks some columns.
	probe := fmt.Sprintf("SELECT %s FROM %s WHERE 1=0", strings.Join(Header(), ", "), tableName)
	rows, err := s.db.QueryContext(ctx, probe)
	if err != nil {
		found, _ := s.columnNames(ctx)
		return &ErrSchemaMismatch{Found: found}
	}
	rows.Close()
	return nil
}

func (s *SQLStore) columnNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1=0", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

// Append inserts rec as a new row.
func (s *SQLStore) Append(ctx context.Context, rec model.Record) error {
	return s.AppendRow(ctx, RecordRow(rec))
}

// AppendRow inserts row, one cell per contract column.
func (s *SQLStore) AppendRow(ctx context.Context, row []string) error {
	if len(row) != len(Columns) {
		return fmt.Errorf("row has %d cells, want %d", len(row), len(Columns))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(row)), ", ")
	q := s.db.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tableName, strings.Join(Header(), ", "), marks))
	args := make([]interface{}, len(row))
	for i, c := range row {
		args[i] = c
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return s.unavailable("append", err)
	}
	return nil
}

// LoadAll returns every row in insertion order.
func (s *SQLStore) LoadAll(ctx context.Context) (*Table, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(Header(), ", "), tableName)
	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, s.unavailable("load", err)
	}
	defer rows.Close()

	t := emptyTable()
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, s.unavailable("load", err)
		}
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = cellString(v)
		}
		t.Rows = append(t.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("load", err)
	}
	return t, nil
}

func cellString(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
