package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/accrt/portal/internal/model"
)

// SheetName is the worksheet holding the record table.
const SheetName = "Registros"

// XLSXStore keeps the record table in one worksheet of a workbook. Appends
// rewrite the workbook to a temporary file and rename it into place.
type XLSXStore struct {
	path string
	mu   sync.Mutex
}

// OpenXLSX returns a store for the workbook at path. The file is created on
// the first append.
func OpenXLSX(path string) *XLSXStore {
	return &XLSXStore{path: path}
}

func (s *XLSXStore) unavailable(op string, err error) error {
	return &ErrStoreUnavailable{Backend: "xlsx", Op: op, Err: err}
}

// Append stores rec as the next row of the sheet.
func (s *XLSXStore) Append(ctx context.Context, rec model.Record) error {
	return s.AppendRow(ctx, RecordRow(rec))
}

// AppendRow writes the header on an empty sheet, then row below the last one.
func (s *XLSXStore) AppendRow(ctx context.Context, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.openWorkbook()
	if err != nil {
		return s.unavailable("append", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return s.unavailable("append", err)
	}
	next := len(rows) + 1
	if len(rows) == 0 {
		if err := setRow(f, 1, Header()); err != nil {
			return s.unavailable("append", err)
		}
		next = 2
	} else if !SameHeader(rows[0]) {
		return &ErrSchemaMismatch{Found: rows[0]}
	}
	if err := setRow(f, next, row); err != nil {
		return s.unavailable("append", err)
	}

	// SaveAs rejects names without a workbook extension.
	tmp := strings.TrimSuffix(s.path, filepath.Ext(s.path)) + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		return s.unavailable("append", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return s.unavailable("append", err)
	}
	return nil
}

func (s *XLSXStore) openWorkbook() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		if err := f.SetSheetName("Sheet1", SheetName); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet: %w", err)
		}
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	idx, err := f.GetSheetIndex(SheetName)
	if err != nil {
		f.Close()
		return nil, err
	}
	if idx < 0 {
		if _, err := f.NewSheet(SheetName); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet: %w", err)
		}
	}
	return f, nil
}

func setRow(f *excelize.File, n int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	return f.SetSheetRow(SheetName, cell, &vals)
}

// LoadAll reads the sheet as is. A missing workbook or sheet is an empty table.
func (s *XLSXStore) LoadAll(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyTable(), nil
	}
	if err != nil {
		return nil, s.unavailable("load", err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(SheetName)
	if err != nil {
		return nil, s.unavailable("load", err)
	}
	if idx < 0 {
		return emptyTable(), nil
	}
	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, s.unavailable("load", err)
	}
	if len(rows) == 0 {
		return emptyTable(), nil
	}
	return &Table{Header: rows[0], Rows: rows[1:]}, nil
}

// Close is a no-op; the workbook is opened per call.
func (s *XLSXStore) Close() error { return nil }
