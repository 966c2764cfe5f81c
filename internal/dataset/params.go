package dataset

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/accrt/portal/internal/coerce"
	"github.com/accrt/portal/internal/model"
)

// FilterError names the query parameter that failed to parse.
type FilterError struct {
	Param string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid filter parameter %q", e.Param)
}

// ParseFilter reads a filter from query parameters. group, student, case and
// level may repeat or hold comma-separated values; min_diagnostic,
// min_therapeutic and min_total are numbers; from and to are YYYY-MM-DD dates
// in loc.
func ParseFilter(q url.Values, loc *time.Location) (model.Filter, error) {
	f := model.Filter{
		Groups:   multi(q, "group"),
		Students: multi(q, "student"),
		Cases:    multi(q, "case"),
		Levels:   multi(q, "level"),
	}
	thresholds := []struct {
		param string
		dst   *float64
	}{
		{"min_diagnostic", &f.MinDiagnostic},
		{"min_therapeutic", &f.MinTherapeutic},
		{"min_total", &f.MinTotal},
	}
	for _, th := range thresholds {
		param, dst := th.param, th.dst
		s := q.Get(param)
		if s == "" {
			continue
		}
		v, ok := coerce.Number(s)
		if !ok || v < 0 {
			return model.Filter{}, &FilterError{Param: param}
		}
		*dst = v
	}
	dates := []struct {
		param string
		dst   **time.Time
	}{
		{"from", &f.From},
		{"to", &f.To},
	}
	for _, dt := range dates {
		param, dst := dt.param, dt.dst
		s := q.Get(param)
		if s == "" {
			continue
		}
		d, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return model.Filter{}, &FilterError{Param: param}
		}
		*dst = &d
	}
	return f, nil
}

func multi(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
