// Package roster maps student codes to display names.
package roster

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Roster is a static, read-only code -> name mapping.
type Roster struct {
	names map[string]string
}

// New builds a roster from a map. Codes and names are trimmed.
func New(entries map[string]string) *Roster {
	r := &Roster{names: make(map[string]string, len(entries))}
	for code, name := range entries {
		code, name = strings.TrimSpace(code), strings.TrimSpace(name)
		if code == "" || name == "" {
			continue
		}
		r.names[code] = name
	}
	return r
}

// Load reads a roster file: a JSON object {"code": "name"} or a CSV with code and
// name in the first two columns (a header row is skipped). An empty path yields
// an empty roster.
func Load(path string) (*Roster, error) {
	if path == "" {
		return New(nil), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	var entries map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		entries, err = readCSV(f)
	default:
		err = json.NewDecoder(f).Decode(&entries)
	}
	if err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	r := New(entries)
	slog.Info("loaded roster", "path", path, "students", r.Len())
	return r, nil
}

func readCSV(rd io.Reader) (map[string]string, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		if i == 0 && isHeader(row[0]) {
			continue
		}
		entries[row[0]] = row[1]
	}
	return entries, nil
}

func isHeader(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "codigo", "código", "code", "estudiante_id":
		return true
	}
	return false
}

// Name returns the display name for code.
func (r *Roster) Name(code string) (string, bool) {
	if r == nil {
		return "", false
	}
	n, ok := r.names[strings.TrimSpace(code)]
	return n, ok
}

// Len returns the number of students in the roster.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}
