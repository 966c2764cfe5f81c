// Package dataset turns a raw record table into typed rows and answers
// filter and aggregate queries over them.
package dataset

import (
	"log/slog"
	"strings"
	"time"

	"github.com/accrt/portal/internal/coerce"
	"github.com/accrt/portal/internal/model"
	"github.com/accrt/portal/internal/store"
	"github.com/accrt/portal/internal/submission"
)

// Row is one cleaned record. Numeric fields are always numbers; Date is nil
// when the stored date could not be parsed.
type Row struct {
	Date          *time.Time         `json:"date"`
	DateText      string             `json:"date_text"`
	Time          string             `json:"time"`
	Group         string             `json:"group"`
	Code          string             `json:"code"`
	Name          string             `json:"name"`
	CaseID        string             `json:"case_id"`
	Level         string             `json:"level"`
	Diagnosis     string             `json:"diagnosis"`
	Total         float64            `json:"total"`
	Diagnostic    float64            `json:"diagnostic"`
	Therapeutic   float64            `json:"therapeutic"`
	Domains       model.DomainScores `json:"domains"`
	Biases        []string           `json:"biases"`
	IllnessScript string             `json:"illness_script"`
	Hypotheses    string             `json:"hypotheses"`
	Management    string             `json:"management"`
	Start         string             `json:"start"`
	End           string             `json:"end"`
	Duration      float64            `json:"duration_minutes"`
	HasDuration   bool               `json:"has_duration"`
	SubmissionID  string             `json:"submission_id"`
	RawJSON       string             `json:"-"`
}

// Dataset is the cleaned table plus counts of the soft conversions applied
// while loading it.
type Dataset struct {
	Rows []Row
	// Coercions counts non-empty numeric cells that did not parse and were
	// read as 0.
	Coercions int
	// UndatedRows counts rows whose date did not parse.
	UndatedRows int
}

// Len returns the number of rows.
func (ds *Dataset) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.Rows)
}

type cells struct {
	row []string
	pos map[string]int
}

func (c cells) text(col string) string {
	i, ok := c.pos[col]
	if !ok || i >= len(c.row) {
		return ""
	}
	return strings.TrimSpace(c.row[i])
}

// Load cleans a raw table. Columns are found by header name, so tables written
// with any earlier header layout load too. Dates are read in loc.
func Load(t *store.Table, loc *time.Location) *Dataset {
	if t == nil {
		return &Dataset{}
	}
	ds := &Dataset{Rows: make([]Row, 0, len(t.Rows))}
	pos := store.Positions(t.Header)

	for _, raw := range t.Rows {
		c := cells{row: raw, pos: pos}
		num := func(col string) (float64, bool) {
			s := c.text(col)
			if s == "" {
				return 0, false
			}
			f, ok := coerce.Number(s)
			if !ok {
				ds.Coercions++
			}
			return f, true
		}

		r := Row{
			DateText:      c.text(store.ColDate),
			Time:          c.text(store.ColTime),
			Group:         c.text(store.ColGroup),
			Code:          c.text(store.ColCode),
			Name:          c.text(store.ColName),
			CaseID:        c.text(store.ColCaseID),
			Level:         c.text(store.ColLevel),
			Diagnosis:     c.text(store.ColDiagnosis),
			Biases:        submission.ParseBiasString(c.text(store.ColBiases)),
			IllnessScript: c.text(store.ColIllnessScript),
			Hypotheses:    c.text(store.ColHypotheses),
			Management:    c.text(store.ColTreatment),
			Start:         c.text(store.ColStart),
			End:           c.text(store.ColEnd),
			SubmissionID:  c.text(store.ColSubmissionID),
			RawJSON:       c.text(store.ColRawJSON),
		}
		r.Date = coerce.Date(r.DateText, loc)
		if r.Date == nil {
			ds.UndatedRows++
		}

		r.Domains.Collection, _ = num(store.ColCollection)
		r.Domains.Synthesis, _ = num(store.ColSynthesis)
		r.Domains.Hypothesis, _ = num(store.ColHypothesis)
		r.Domains.Interpretation, _ = num(store.ColInterpretation)
		r.Domains.Management, _ = num(store.ColManagement)

		// Rows from layouts without the composite columns get them derived.
		derived := submission.Composite(r.Domains)
		var present bool
		if r.Diagnostic, present = num(store.ColDiagnostic); !present {
			r.Diagnostic = derived.Diagnostic
		}
		if r.Therapeutic, present = num(store.ColTherapeutic); !present {
			r.Therapeutic = derived.Therapeutic
		}
		if r.Total, present = num(store.ColTotal); !present {
			r.Total = r.Diagnostic + r.Therapeutic
		}
		r.Duration, r.HasDuration = coerce.Number(c.text(store.ColDuration))

		ds.Rows = append(ds.Rows, r)
	}

	if ds.Coercions > 0 || ds.UndatedRows > 0 {
		slog.Debug("dataset loaded with defaults",
			"rows", len(ds.Rows), "numeric_defaults", ds.Coercions, "undated_rows", ds.UndatedRows)
	}
	return ds
}
