package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/accrt/portal/internal/model"
)

// Store is an append-only record table. Rows are never updated or deleted.
type Store interface {
	// Append writes one record as a new row in the column contract order.
	Append(ctx context.Context, rec model.Record) error
	// AppendRow writes one row that is already in the column contract order.
	AppendRow(ctx context.Context, row []string) error
	// LoadAll returns every row in append order. An empty store is not an error.
	LoadAll(ctx context.Context) (*Table, error)
	Close() error
}

// Table is the raw content of a store: string cells under the header row they
// were written with.
type Table struct {
	Header []string
	Rows   [][]string
}

// ErrStoreUnavailable wraps any backend failure on open, append or load.
type ErrStoreUnavailable struct {
	Backend string
	Op      string
	Err     error
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("%s store unavailable (%s): %v", e.Backend, e.Op, e.Err)
}

func (e *ErrStoreUnavailable) Unwrap() error { return e.Err }

// ErrSchemaMismatch is returned on append when the stored header is not the
// current column contract. Reordering or renaming columns needs a migration.
type ErrSchemaMismatch struct {
	Found []string
}

func (e *ErrSchemaMismatch) Error() string {
	return fmt.Sprintf("stored header has %d columns that do not match the current %d-column contract; run migrate",
		len(e.Found), len(Columns))
}

// IsUnavailable reports whether err is a store availability failure.
func IsUnavailable(err error) bool {
	var u *ErrStoreUnavailable
	return errors.As(err, &u)
}

// Open selects a backend from dsn:
//
//	postgres://... or postgresql://...   PostgreSQL
//	sqlite:PATH, PATH.db, PATH.sqlite    SQLite
//	xlsx:PATH, PATH.xlsx                 spreadsheet
//	csv:PATH, PATH.csv                   CSV file
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenSQL(ctx, "postgres", dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQL(ctx, "sqlite", strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "xlsx:"):
		return OpenXLSX(strings.TrimPrefix(dsn, "xlsx:")), nil
	case strings.HasPrefix(dsn, "csv:"):
		return OpenCSV(strings.TrimPrefix(dsn, "csv:")), nil
	}
	switch strings.ToLower(filepath.Ext(dsn)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQL(ctx, "sqlite", dsn)
	case ".xlsx":
		return OpenXLSX(dsn), nil
	case ".csv":
		return OpenCSV(dsn), nil
	}
	return nil, fmt.Errorf("unrecognized store %q", dsn)
}
