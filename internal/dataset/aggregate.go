package dataset

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/montanaflynn/stats"

	"github.com/accrt/portal/internal/model"
	"github.com/accrt/portal/internal/store"
)

// DefaultSentinel is the bias token meaning "no bias detected".
const DefaultSentinel = "Ninguno"

// minTokenRunes drops fragments left behind by malformed bias cells.
const minTokenRunes = 3

// NumericColumns are the aggregatable columns, by stored column name. Duration
// only counts rows that recorded one.
var NumericColumns = []string{
	store.ColTotal,
	store.ColDiagnostic,
	store.ColTherapeutic,
	store.ColCollection,
	store.ColSynthesis,
	store.ColHypothesis,
	store.ColInterpretation,
	store.ColManagement,
	store.ColDuration,
}

// Value returns the numeric value of column for r. ok is false for an unknown
// column or a row without a duration.
func (r Row) Value(column string) (float64, bool) {
	switch column {
	case store.ColTotal:
		return r.Total, true
	case store.ColDiagnostic:
		return r.Diagnostic, true
	case store.ColTherapeutic:
		return r.Therapeutic, true
	case store.ColCollection:
		return r.Domains.Collection, true
	case store.ColSynthesis:
		return r.Domains.Synthesis, true
	case store.ColHypothesis:
		return r.Domains.Hypothesis, true
	case store.ColInterpretation:
		return r.Domains.Interpretation, true
	case store.ColManagement:
		return r.Domains.Management, true
	case store.ColDuration:
		return r.Duration, r.HasDuration
	}
	return 0, false
}

// Mean summarizes one numeric column. An empty subset yields NoData rather
// than NaN.
func Mean(ds *Dataset, column string) model.Summary {
	sum := model.Summary{Column: column}
	var data stats.Float64Data
	if ds != nil {
		for _, r := range ds.Rows {
			if v, ok := r.Value(column); ok {
				data = append(data, v)
			}
		}
	}
	sum.Count = data.Len()
	if sum.Count == 0 {
		sum.NoData = true
		return sum
	}
	mean, err := stats.Mean(data)
	if err != nil {
		sum.NoData = true
		return sum
	}
	median, err := stats.Median(data)
	if err != nil {
		median = mean
	}
	sum.Mean, sum.Median = mean, median
	return sum
}

// Summarize returns Mean for each column, defaulting to the three composite
// scores and duration.
func Summarize(ds *Dataset, columns ...string) []model.Summary {
	if len(columns) == 0 {
		columns = []string{store.ColTotal, store.ColDiagnostic, store.ColTherapeutic, store.ColDuration}
	}
	out := make([]model.Summary, 0, len(columns))
	for _, c := range columns {
		out = append(out, Mean(ds, c))
	}
	return out
}

// BiasFrequency counts bias tokens across all rows. Tokens shorter than three
// characters and the sentinel (compared case-insensitively) are not counted.
// An empty sentinel means DefaultSentinel.
func BiasFrequency(ds *Dataset, sentinel string) map[string]int {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	counts := make(map[string]int)
	if ds == nil {
		return counts
	}
	for _, r := range ds.Rows {
		for _, tok := range r.Biases {
			tok = strings.TrimSpace(tok)
			if utf8.RuneCountInString(tok) < minTokenRunes || strings.EqualFold(tok, sentinel) {
				continue
			}
			counts[tok]++
		}
	}
	return counts
}

// RankBiases orders counts by frequency, most frequent first, ties by token.
func RankBiases(counts map[string]int) []model.BiasCount {
	out := make([]model.BiasCount, 0, len(counts))
	for tok, n := range counts {
		out = append(out, model.BiasCount{Token: tok, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// FilterOptions lists the distinct values offered by each set filter.
type FilterOptions struct {
	Groups   []string `json:"groups"`
	Students []string `json:"students"`
	Cases    []string `json:"cases"`
	Levels   []string `json:"levels"`
}

// Options returns the sorted distinct groups, student names, cases and levels
// of ds, skipping empty and "N/A" values.
func Options(ds *Dataset) FilterOptions {
	groups, students, cases, levels := map[string]bool{}, map[string]bool{}, map[string]bool{}, map[string]bool{}
	if ds != nil {
		for _, r := range ds.Rows {
			add(groups, r.Group)
			add(students, r.Name)
			add(cases, r.CaseID)
			add(levels, r.Level)
		}
	}
	return FilterOptions{
		Groups:   sortedKeys(groups),
		Students: sortedKeys(students),
		Cases:    sortedKeys(cases),
		Levels:   sortedKeys(levels),
	}
}

func add(m map[string]bool, v string) {
	if v == "" || v == model.NotAvailable {
		return
	}
	m[v] = true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
