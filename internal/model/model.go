package model

import (
	"context"
	"time"
)

// MaxDomainScore is the nominal upper bound of a single domain score.
const MaxDomainScore = 2.0

// NotAvailable is the default for identifier fields the submission does not carry.
const NotAvailable = "N/A"

// RotationGroups is the fixed set of rotation group letters.
var RotationGroups = []string{
	"A", "B", "C", "D", "E", "F", "G", "H",
	"I", "J", "K", "L", "M", "N", "O", "P",
}

// IsRotationGroup reports whether g is one of the sixteen rotation groups.
func IsRotationGroup(g string) bool {
	for _, rg := range RotationGroups {
		if rg == g {
			return true
		}
	}
	return false
}

// DomainScores holds the five CRI-HT-S sub-competency scores.
type DomainScores struct {
	Collection     float64 `json:"collection"`
	Synthesis      float64 `json:"synthesis"`
	Hypothesis     float64 `json:"hypothesis"`
	Interpretation float64 `json:"interpretation"`
	Management     float64 `json:"management"`
}

// CompositeScore is derived from DomainScores. Total is always Diagnostic + Therapeutic.
type CompositeScore struct {
	Diagnostic  float64 `json:"diagnostic"`
	Therapeutic float64 `json:"therapeutic"`
	Total       float64 `json:"total"`
}

// Identity describes who submitted and which case was solved.
type Identity struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Group     string `json:"group"`
	CaseID    string `json:"case_id"`
	Level     string `json:"level"`
	Diagnosis string `json:"diagnosis"`
}

// AuditTimes are the optional manual start/end clock times ("HH:MM") typed by the student.
type AuditTimes struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Audit is the audit trail stored with every record.
type Audit struct {
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	Start           string  `json:"start,omitempty"`
	End             string  `json:"end,omitempty"`
	DurationMinutes float64 `json:"duration_minutes"`
	HasDuration     bool    `json:"has_duration"`
}

// Trace is the qualitative part of a submission.
type Trace struct {
	IllnessScript string   `json:"illness_script"`
	Hypotheses    string   `json:"hypotheses"`
	Management    string   `json:"management"`
	Biases        []string `json:"biases"`
}

// Record is the canonical, flattened representation of one accepted submission.
// It is built once and never modified; corrections are new records.
type Record struct {
	SubmissionID string         `json:"submission_id"`
	Identity     Identity       `json:"identity"`
	Audit        Audit          `json:"audit"`
	Composite    CompositeScore `json:"composite"`
	Domains      DomainScores   `json:"domains"`
	Trace        Trace          `json:"trace"`
	RawJSON      string         `json:"raw_json"`
}

// Confirmation is returned to the submitter once a record has been stored.
type Confirmation struct {
	SubmissionID string   `json:"submission_id"`
	Record       Record   `json:"record"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Filter is a conjunctive filter specification over a dataset.
// Empty sets and zero thresholds do not constrain.
type Filter struct {
	Groups         []string   `json:"groups,omitempty"`
	Students       []string   `json:"students,omitempty"`
	Cases          []string   `json:"cases,omitempty"`
	Levels         []string   `json:"levels,omitempty"`
	MinDiagnostic  float64    `json:"min_diagnostic,omitempty"`
	MinTherapeutic float64    `json:"min_therapeutic,omitempty"`
	MinTotal       float64    `json:"min_total,omitempty"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
}

// Summary is the result of aggregating one numeric column.
type Summary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	NoData bool    `json:"no_data"`
}

// Session is the caller-supplied authentication state for the docent surface.
type Session struct {
	User   string
	Docent bool
}

type sessionCtxKey struct{}

// ContextWithSession stores a session in the request context.
func ContextWithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext retrieves the session from context; the zero Session if unset.
func SessionFromContext(ctx context.Context) Session {
	s, _ := ctx.Value(sessionCtxKey{}).(Session)
	return s
}
