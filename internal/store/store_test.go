package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"github.com/xuri/excelize/v2"

	"github.com/accrt/portal/internal/model"
)

func testRecord(code string) model.Record {
	return model.Record{
		SubmissionID: "sub-" + code,
		Identity: model.Identity{
			Code: code, Name: "Ana Pérez", Group: "C",
			CaseID: "C12", Level: "Avanzado", Diagnosis: "Neumonía",
		},
		Audit: model.Audit{
			Date: "2025-03-14", Time: "22:30", Start: "22:00", End: "22:25",
			DurationMinutes: 25, HasDuration: true,
		},
		Composite: model.CompositeScore{Diagnostic: 6, Therapeutic: 2, Total: 8},
		Domains: model.DomainScores{
			Collection: 2, Synthesis: 1, Hypothesis: 2, Interpretation: 1, Management: 2,
		},
		Trace: model.Trace{
			IllnessScript: "Fiebre y tos, \"productiva\"",
			Hypotheses:    `["neumonía"]`,
			Management:    "amoxicilina",
			Biases:        []string{"Anclaje", "Cierre prematuro"},
		},
		RawJSON: `{"metadata":{"caso_id":"C12"}}`,
	}
}

func newTestStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sq, err := OpenSQL(context.Background(), "sqlite", filepath.Join(dir, "registros.db"))
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	stores := map[string]Store{
		"csv":    OpenCSV(filepath.Join(dir, "registros.csv")),
		"xlsx":   OpenXLSX(filepath.Join(dir, "registros.xlsx")),
		"sqlite": sq,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestRecordRowMatchesContract(t *testing.T) {
	row := RecordRow(testRecord("1001"))
	if len(row) != len(Columns) {
		t.Fatalf("row has %d cells, contract has %d columns", len(row), len(Columns))
	}
	pos := Positions(Header())
	checks := map[string]string{
		ColCode:         "1001",
		ColTotal:        "8",
		ColDiagnostic:   "6",
		ColTherapeutic:  "2",
		ColBiases:       `["Anclaje","Cierre prematuro"]`,
		ColDuration:     "25",
		ColSubmissionID: "sub-1001",
	}
	for col, want := range checks {
		if got := row[pos[col]]; got != want {
			t.Errorf("%s = %q, want %q", col, got, want)
		}
	}
}

func TestAppendAndLoadAll(t *testing.T) {
	ctx := context.Background()
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			// Empty store loads as an empty table.
			tbl, err := s.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll empty: %v", err)
			}
			if len(tbl.Rows) != 0 {
				t.Fatalf("expected no rows, got %d", len(tbl.Rows))
			}

			first, second := testRecord("1001"), testRecord("1002")
			for _, rec := range []model.Record{first, second} {
				if err := s.Append(ctx, rec); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			tbl, err = s.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll: %v", err)
			}
			if diff := cmp.Diff(Header(), tbl.Header); diff != "" {
				t.Errorf("header mismatch (-want +got):\n%s", diff)
			}
			want := [][]string{RecordRow(first), RecordRow(second)}
			if diff := cmp.Diff(want, tbl.Rows); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestXLSXAppendReplacesWorkbook(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "registros.xlsx")

	for _, code := range []string{"1001", "1002", "1003"} {
		if err := OpenXLSX(path).Append(ctx, testRecord(code)); err != nil {
			t.Fatalf("Append %s: %v", code, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "registros.xlsx" {
		t.Errorf("unexpected files left behind: %v", entries)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 || rows[3][3] != "1003" {
		t.Errorf("expected header and three rows, got %d rows", len(rows))
	}
}

func TestXLSXAppendWithoutWorkbookExtension(t *testing.T) {
	ctx := context.Background()
	s := OpenXLSX(filepath.Join(t.TempDir(), "registros.bin"))
	if err := s.Append(ctx, testRecord("1001")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	tbl, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(tbl.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(tbl.Rows))
	}
}

func TestCSVSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.csv")
	if err := os.WriteFile(path, []byte("Fecha_Registro,Estudiante,Caso_ID\n2024-05-01,Ana,C1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := OpenCSV(path).Append(context.Background(), testRecord("1001"))
	var mErr *ErrSchemaMismatch
	if !errors.As(err, &mErr) {
		t.Fatalf("expected *ErrSchemaMismatch, got %v", err)
	}
	if len(mErr.Found) != 3 {
		t.Errorf("found header = %v", mErr.Found)
	}
}

func TestCSVUnavailable(t *testing.T) {
	s := OpenCSV(filepath.Join(t.TempDir(), "missing", "dir", "registros.csv"))
	err := s.Append(context.Background(), testRecord("1001"))
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestCSVConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s := OpenCSV(filepath.Join(t.TempDir(), "registros.csv"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Append(ctx, testRecord(fmt.Sprint(1000+i))); err != nil {
				t.Errorf("Append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	tbl, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(tbl.Rows) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(tbl.Rows))
	}
	for i, row := range tbl.Rows {
		if len(row) != len(Columns) {
			t.Errorf("row %d has %d cells", i, len(row))
		}
	}
}

func TestSQLSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE registros (id INTEGER PRIMARY KEY, fecha TEXT)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	_, err = OpenSQL(context.Background(), "sqlite", path)
	var mErr *ErrSchemaMismatch
	if !errors.As(err, &mErr) {
		t.Fatalf("expected *ErrSchemaMismatch, got %v", err)
	}
}

func TestSQLiteUsesWAL(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, "sqlite", filepath.Join(t.TempDir(), "registros.db"))
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	defer s.Close()

	var mode string
	if err := s.db.GetContext(ctx, &mode, "PRAGMA journal_mode"); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tests := []struct {
		dsn  string
		want string
	}{
		{filepath.Join(dir, "a.csv"), "*store.CSVStore"},
		{"csv:" + filepath.Join(dir, "b.txt"), "*store.CSVStore"},
		{filepath.Join(dir, "c.xlsx"), "*store.XLSXStore"},
		{"xlsx:" + filepath.Join(dir, "d.bin"), "*store.XLSXStore"},
		{filepath.Join(dir, "e.db"), "*store.SQLStore"},
		{"sqlite:" + filepath.Join(dir, "f"), "*store.SQLStore"},
	}
	for _, tt := range tests {
		s, err := Open(ctx, tt.dsn)
		if err != nil {
			t.Fatalf("Open(%q): %v", tt.dsn, err)
		}
		if got := fmt.Sprintf("%T", s); got != tt.want {
			t.Errorf("Open(%q) = %s, want %s", tt.dsn, got, tt.want)
		}
		s.Close()
	}
	if _, err := Open(ctx, filepath.Join(dir, "g.txt")); err == nil {
		t.Error("expected error for unknown store")
	}
}

func TestNormalizeLegacyHeaders(t *testing.T) {
	tbl := &Table{
		Header: []string{"Fecha_Registro", "Estudiante", "Caso_ID", "Score_Interp", "Extra"},
		Rows: [][]string{
			{"2024-05-01 10:30", "Ana", "C1", "1.5", "x"},
			{"2024-05-02"},
		},
	}
	rows := tbl.Normalize()
	pos := Positions(Header())
	if rows[0][pos[ColDate]] != "2024-05-01 10:30" || rows[0][pos[ColName]] != "Ana" ||
		rows[0][pos[ColCaseID]] != "C1" || rows[0][pos[ColInterpretation]] != "1.5" {
		t.Errorf("unexpected first row %v", rows[0])
	}
	if rows[0][pos[ColCode]] != "" {
		t.Errorf("absent column should be empty, got %q", rows[0][pos[ColCode]])
	}
	if len(rows[1]) != len(Columns) || rows[1][pos[ColName]] != "" {
		t.Errorf("short row not padded: %v", rows[1])
	}
}

func TestPositionsStripsByteOrderMark(t *testing.T) {
	pos := Positions([]string{"\ufeffFecha_Registro", " Estudiante ", "NOMBRE"})
	want := map[string]int{ColDate: 0, ColName: 1}
	if diff := cmp.Diff(want, pos); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	legacy := filepath.Join(dir, "legacy.csv")
	content := "Fecha_Registro,Estudiante,Caso_ID,Puntaje_Total\n2024-05-01,Ana,C1,7\n2024-05-02,Luis,C2,5\n"
	if err := os.WriteFile(legacy, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	dst, err := OpenSQL(ctx, "sqlite", filepath.Join(dir, "new.db"))
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	defer dst.Close()

	n, err := Export(ctx, OpenCSV(legacy), dst)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Fatalf("exported %d rows, want 2", n)
	}
	tbl, err := dst.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	pos := Positions(tbl.Header)
	if got := tbl.Rows[1][pos[ColTotal]]; got != "5" {
		t.Errorf("total = %q, want 5", got)
	}
}
