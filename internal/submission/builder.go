package submission

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/accrt/portal/internal/coerce"
	"github.com/accrt/portal/internal/model"
)

// Roster resolves a student code to a display name.
type Roster interface {
	Name(code string) (string, bool)
}

// Builder turns raw submissions into canonical records.
type Builder struct {
	roster   Roster
	location *time.Location

	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() string
}

// NewBuilder creates a Builder that stamps records in the given time zone.
func NewBuilder(r Roster, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.Local
	}
	return &Builder{
		roster:   r,
		location: loc,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// Build resolves, scores and assembles one record. It fails only when raw is
// not a JSON object (*ErrMalformedInput) or no student code can be found
// (*ErrValidation). The wall clock is read at the call.
func (b *Builder) Build(raw string, id model.Identity, times model.AuditTimes) (*model.Confirmation, error) {
	res, err := Resolve([]byte(raw))
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(id.Code)
	if code == "" && res.StudentCode != model.NotAvailable {
		code = res.StudentCode
	}
	if code == "" {
		return nil, &ErrValidation{Field: FieldStudentCode}
	}

	var warnings []string
	for _, f := range res.Coerced {
		slog.Debug("non-numeric score defaulted to zero", "field", f, "code", code)
		warnings = append(warnings, fmt.Sprintf("%s is not numeric, counted as 0", f))
	}

	identity := model.Identity{
		Code:      code,
		Name:      b.displayName(code, id.Name),
		Group:     firstNonEmpty(id.Group, res.Group),
		CaseID:    firstNonEmpty(id.CaseID, res.CaseID),
		Level:     firstNonEmpty(id.Level, res.Level),
		Diagnosis: firstNonEmpty(id.Diagnosis, res.Diagnosis),
	}
	group := strings.ToUpper(identity.Group)
	if !model.IsRotationGroup(group) {
		if identity.Group != model.NotAvailable {
			warnings = append(warnings, fmt.Sprintf("unknown rotation group %q", identity.Group))
		}
		group = model.NotAvailable
	}
	identity.Group = group

	now := b.Now().In(b.location)
	audit := model.Audit{
		Date:  now.Format("2006-01-02"),
		Time:  now.Format("15:04"),
		Start: strings.TrimSpace(times.Start),
		End:   strings.TrimSpace(times.End),
	}
	if audit.Start != "" && audit.End != "" {
		minutes, err := Duration(audit.Start, audit.End)
		if err != nil {
			warnings = append(warnings, err.Error())
		} else {
			audit.DurationMinutes = float64(minutes)
			audit.HasDuration = true
		}
	}

	composite := Composite(res.Domains)
	if res.Found[FieldReportedTotal] && math.Abs(res.ReportedTotal-composite.Total) > 1e-9 {
		warnings = append(warnings, fmt.Sprintf("reported total %s differs from computed total %s",
			coerce.FormatNumber(res.ReportedTotal), coerce.FormatNumber(composite.Total)))
	}
	for _, f := range OutOfRange(res.Domains) {
		warnings = append(warnings, fmt.Sprintf("%s outside [0, %s], kept as submitted", f, coerce.FormatNumber(model.MaxDomainScore)))
	}

	drift, err := Drift([]byte(raw))
	if err != nil {
		slog.Warn("schema drift check failed", "error", err)
	}
	if len(drift) > 0 {
		slog.Warn("submission drifted from current schema", "code", code, "issues", len(drift))
		warnings = append(warnings, drift...)
	}

	rec := model.Record{
		SubmissionID: b.NewID(),
		Identity:     identity,
		Audit:        audit,
		Composite:    composite,
		Domains:      res.Domains,
		Trace: model.Trace{
			IllnessScript: res.IllnessScript,
			Hypotheses:    res.Hypotheses,
			Management:    res.Treatment,
			Biases:        res.Biases,
		},
		RawJSON: raw,
	}
	return &model.Confirmation{
		SubmissionID: rec.SubmissionID,
		Record:       rec,
		Warnings:     warnings,
	}, nil
}

func (b *Builder) displayName(code, given string) string {
	if b.roster != nil {
		if name, ok := b.roster.Name(code); ok {
			return name
		}
	}
	if given = strings.TrimSpace(given); given != "" {
		return given
	}
	return code
}

// Duration returns the whole minutes between two "HH:MM" clock times. An end
// before the start is taken to be on the next day.
func Duration(start, end string) (int, error) {
	s, ok := coerce.Clock(start)
	if !ok {
		return 0, fmt.Errorf("invalid start time %q", start)
	}
	e, ok := coerce.Clock(end)
	if !ok {
		return 0, fmt.Errorf("invalid end time %q", end)
	}
	if e < s {
		e += 24 * time.Hour
	}
	return int((e - s) / time.Minute), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return model.NotAvailable
}
