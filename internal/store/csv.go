package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/accrt/portal/internal/model"
)

// CSVStore appends rows to a single CSV file. Each row is written with one
// write call on a file opened in append mode.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// OpenCSV returns a store for the CSV file at path. The file is created on the
// first append.
func OpenCSV(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) unavailable(op string, err error) error {
	return &ErrStoreUnavailable{Backend: "csv", Op: op, Err: err}
}

// Append stores rec as one CSV line.
func (s *CSVStore) Append(ctx context.Context, rec model.Record) error {
	return s.AppendRow(ctx, RecordRow(rec))
}

// AppendRow writes the header into an empty file, then row.
func (s *CSVStore) AppendRow(ctx context.Context, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return s.unavailable("append", err)
	}
	defer f.Close()

	header, err := readCSVHeader(f)
	if err != nil {
		return s.unavailable("append", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if header == nil {
		if err := w.Write(Header()); err != nil {
			return s.unavailable("append", err)
		}
	} else if !SameHeader(header) {
		return &ErrSchemaMismatch{Found: header}
	}
	if err := w.Write(row); err != nil {
		return s.unavailable("append", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return s.unavailable("append", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return s.unavailable("append", err)
	}
	if err := f.Sync(); err != nil {
		return s.unavailable("append", err)
	}
	return nil
}

// readCSVHeader returns nil for an empty file.
func readCSVHeader(f *os.File) ([]string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return header, nil
}

// LoadAll reads every line. A missing file is an empty table.
func (s *CSVStore) LoadAll(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyTable(), nil
	}
	if err != nil {
		return nil, s.unavailable("load", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, s.unavailable("load", fmt.Errorf("parse %s: %w", s.path, err))
	}
	if len(rows) == 0 {
		return emptyTable(), nil
	}
	return &Table{Header: rows[0], Rows: rows[1:]}, nil
}

// Close is a no-op; the file is opened per call.
func (s *CSVStore) Close() error { return nil }
