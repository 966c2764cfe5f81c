package dataset

import (
	"strings"
	"time"

	"github.com/accrt/portal/internal/model"
)

// Apply returns the rows of ds matching every constraint of f, in their
// original order. Within a set constraint any member matches; an empty set or a
// zero threshold does not constrain. Date bounds are inclusive calendar days,
// and rows without a date are dropped only when a bound is set. ds is not
// modified.
func Apply(ds *Dataset, f model.Filter) *Dataset {
	out := &Dataset{}
	if ds == nil {
		return out
	}
	out.Coercions, out.UndatedRows = ds.Coercions, ds.UndatedRows
	out.Rows = make([]Row, 0, len(ds.Rows))

	groups := set(f.Groups, true)
	students := set(f.Students, false)
	cases := set(f.Cases, false)
	levels := set(f.Levels, false)

	for _, r := range ds.Rows {
		if groups != nil && !groups[strings.ToUpper(r.Group)] {
			continue
		}
		if students != nil && !students[r.Name] && !students[r.Code] {
			continue
		}
		if cases != nil && !cases[r.CaseID] {
			continue
		}
		if levels != nil && !levels[r.Level] {
			continue
		}
		if below(r.Diagnostic, f.MinDiagnostic) || below(r.Therapeutic, f.MinTherapeutic) || below(r.Total, f.MinTotal) {
			continue
		}
		if !inRange(r.Date, f.From, f.To) {
			continue
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// below reports whether v falls under a positive threshold.
func below(v, threshold float64) bool {
	return threshold > 0 && v < threshold
}

func set(vals []string, upper bool) map[string]bool {
	var m map[string]bool
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if upper {
			v = strings.ToUpper(v)
		}
		if m == nil {
			m = make(map[string]bool, len(vals))
		}
		m[v] = true
	}
	return m
}

func inRange(d, from, to *time.Time) bool {
	if from == nil && to == nil {
		return true
	}
	if d == nil {
		return false
	}
	day := dayKey(*d)
	if from != nil && day < dayKey(*from) {
		return false
	}
	if to != nil && day > dayKey(*to) {
		return false
	}
	return true
}

func dayKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
