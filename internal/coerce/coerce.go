// Package coerce converts loosely typed text cells into numbers, dates and clock
// times. Failures never error: callers get a zero value and ok=false and decide
// whether that is worth a log line.
package coerce

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Number parses s as a float64. It accepts surrounding whitespace and a single
// decimal comma ("3,5"). Empty, non-numeric, NaN and infinite input yield 0, false.
func Number(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// DateLayouts are tried in order by Date.
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02/01/2006 15:04",
}

// Date parses s with the first matching layout in DateLayouts and returns the
// calendar date at midnight in loc. Unparsable input yields nil.
func Date(s string, loc *time.Location) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range DateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		return &d
	}
	return nil
}

var clockLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"}

// Clock parses a wall-clock time of day and returns the offset from midnight.
func Clock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second, true
	}
	return 0, false
}

// FormatNumber renders f without trailing zeros ("8", "3.5").
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
