package dataset

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/accrt/portal/internal/model"
	"github.com/accrt/portal/internal/store"
)

// Cells renders r back into the current column contract.
func (r Row) Cells() []string {
	return store.RecordRow(model.Record{
		SubmissionID: r.SubmissionID,
		Identity: model.Identity{
			Code: r.Code, Name: r.Name, Group: r.Group,
			CaseID: r.CaseID, Level: r.Level, Diagnosis: r.Diagnosis,
		},
		Audit: model.Audit{
			Date: r.DateText, Time: r.Time, Start: r.Start, End: r.End,
			DurationMinutes: r.Duration, HasDuration: r.HasDuration,
		},
		Composite: model.CompositeScore{Diagnostic: r.Diagnostic, Therapeutic: r.Therapeutic, Total: r.Total},
		Domains:   r.Domains,
		Trace: model.Trace{
			IllnessScript: r.IllnessScript,
			Hypotheses:    r.Hypotheses,
			Management:    r.Management,
			Biases:        r.Biases,
		},
		RawJSON: r.RawJSON,
	})
}

// WriteCSV writes ds as CSV under the current column header.
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(store.Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if ds != nil {
		for i, r := range ds.Rows {
			if err := cw.Write(r.Cells()); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
