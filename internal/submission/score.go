package submission

import (
	"github.com/tidwall/gjson"

	"github.com/accrt/portal/internal/coerce"
	"github.com/accrt/portal/internal/model"
)

// CoerceScore converts a raw score to float64. Non-numeric values yield 0, false;
// one bad sub-score must not block the whole submission.
func CoerceScore(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		return coerce.Number(v.Str)
	}
	return 0, false
}

// Composite derives the diagnostic, therapeutic and total scores. Values are
// neither rounded nor clamped.
func Composite(s model.DomainScores) model.CompositeScore {
	diagnostic := s.Collection + s.Synthesis + s.Hypothesis + s.Interpretation
	therapeutic := s.Management
	return model.CompositeScore{
		Diagnostic:  diagnostic,
		Therapeutic: therapeutic,
		Total:       diagnostic + therapeutic,
	}
}

// OutOfRange returns the names of domain scores outside [0, MaxDomainScore].
func OutOfRange(s model.DomainScores) []string {
	var out []string
	for _, d := range []struct {
		name string
		v    float64
	}{
		{FieldCollection, s.Collection},
		{FieldSynthesis, s.Synthesis},
		{FieldHypothesis, s.Hypothesis},
		{FieldInterpretation, s.Interpretation},
		{FieldManagement, s.Management},
	} {
		if d.v < 0 || d.v > model.MaxDomainScore {
			out = append(out, d.name)
		}
	}
	return out
}
