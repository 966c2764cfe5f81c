package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/accrt/portal/internal/model"
)

// Canonical field names produced by Resolve.
const (
	FieldCaseID         = "case_id"
	FieldLevel          = "level"
	FieldDiagnosis      = "diagnosis"
	FieldStudentCode    = "student_code"
	FieldGroup          = "group"
	FieldReportedTotal  = "reported_total"
	FieldCollection     = "score_collection"
	FieldSynthesis      = "score_synthesis"
	FieldHypothesis     = "score_hypothesis"
	FieldInterpretation = "score_interpretation"
	FieldManagement     = "score_management"
	FieldIllnessScript  = "illness_script"
	FieldHypotheses     = "hypotheses"
	FieldTreatment      = "treatment"
	FieldBiases         = "biases"
)

type fieldKind int

const (
	kindIdent      fieldKind = iota // scalar identifier, defaults to "N/A"
	kindText                        // scalar free text, defaults to ""
	kindSerialized                  // any non-null value, arrays/objects kept as compact JSON
	kindScore                       // number or numeric string, defaults to 0
	kindList                        // array or delimited string, defaults to []
)

// fieldSpec is one row of the alias table: the canonical field, its kind and the
// gjson paths tried in priority order (current key first, legacy keys after).
type fieldSpec struct {
	name  string
	kind  fieldKind
	paths []string
	text  func(*Resolved) *string
	num   func(*Resolved) *float64
	list  func(*Resolved) *[]string
}

// domainPaths builds the alias chain of a domain score: the current nested
// "puntaje" object, a bare number under the same key, the older "evaluacion" root
// and the English export names.
func domainPaths(key, legacy string) []string {
	return []string{
		"evaluacion_cri_ht_s." + key + ".puntaje",
		"evaluacion_cri_ht_s." + key,
		"evaluacion." + key + ".puntaje",
		"evaluacion." + key,
		"scores." + legacy,
	}
}

var fieldTable = []fieldSpec{
	{
		name:  FieldCaseID,
		kind:  kindIdent,
		paths: []string{"metadata.caso_id", "metadata.id_caso", "metadata.case_id", "caso_id"},
		text:  func(r *Resolved) *string { return &r.CaseID },
	},
	{
		name:  FieldLevel,
		kind:  kindIdent,
		paths: []string{"metadata.nivel", "metadata.nivel_dificultad", "metadata.level", "nivel"},
		text:  func(r *Resolved) *string { return &r.Level },
	},
	{
		name:  FieldDiagnosis,
		kind:  kindIdent,
		paths: []string{"metadata.diagnostico_real", "metadata.dx_real", "metadata.diagnostico", "diagnostico_real"},
		text:  func(r *Resolved) *string { return &r.Diagnosis },
	},
	{
		name:  FieldStudentCode,
		kind:  kindIdent,
		paths: []string{"metadata.estudiante_id", "metadata.codigo_estudiante", "estudiante_id"},
		text:  func(r *Resolved) *string { return &r.StudentCode },
	},
	{
		name:  FieldGroup,
		kind:  kindIdent,
		paths: []string{"metadata.grupo_rotacion", "metadata.grupo", "grupo_rotacion"},
		text:  func(r *Resolved) *string { return &r.Group },
	},
	{
		name:  FieldReportedTotal,
		kind:  kindScore,
		paths: []string{"evaluacion_cri_ht_s.total_sobre_10", "evaluacion_cri_ht_s.total", "evaluacion.total_sobre_10"},
		num:   func(r *Resolved) *float64 { return &r.ReportedTotal },
	},
	{
		name:  FieldCollection,
		kind:  kindScore,
		paths: domainPaths("recoleccion_datos", "collection"),
		num:   func(r *Resolved) *float64 { return &r.Domains.Collection },
	},
	{
		name:  FieldSynthesis,
		kind:  kindScore,
		paths: domainPaths("representacion_problema", "synthesis"),
		num:   func(r *Resolved) *float64 { return &r.Domains.Synthesis },
	},
	{
		name:  FieldHypothesis,
		kind:  kindScore,
		paths: domainPaths("generacion_hipotesis", "hypothesis"),
		num:   func(r *Resolved) *float64 { return &r.Domains.Hypothesis },
	},
	{
		name:  FieldInterpretation,
		kind:  kindScore,
		paths: domainPaths("interpretacion_datos", "interpretation"),
		num:   func(r *Resolved) *float64 { return &r.Domains.Interpretation },
	},
	{
		name:  FieldManagement,
		kind:  kindScore,
		paths: domainPaths("toma_decisiones", "management"),
		num:   func(r *Resolved) *float64 { return &r.Domains.Management },
	},
	{
		name:  FieldIllnessScript,
		kind:  kindText,
		paths: []string{"traza_cognitiva.illness_script_estudiante", "traza_cognitiva.illness_script", "illness_script"},
		text:  func(r *Resolved) *string { return &r.IllnessScript },
	},
	{
		name:  FieldHypotheses,
		kind:  kindSerialized,
		paths: []string{"traza_cognitiva.hipotesis_planteadas", "traza_cognitiva.hipotesis", "hipotesis_planteadas"},
		text:  func(r *Resolved) *string { return &r.Hypotheses },
	},
	{
		name:  FieldTreatment,
		kind:  kindSerialized,
		paths: []string{"traza_cognitiva.tratamiento_propuesto", "traza_cognitiva.manejo", "tratamiento_propuesto"},
		text:  func(r *Resolved) *string { return &r.Treatment },
	},
	{
		name:  FieldBiases,
		kind:  kindList,
		paths: []string{"sesgos_cognitivos.detectados", "sesgos_cognitivos", "sesgos"},
		list:  func(r *Resolved) *[]string { return &r.Biases },
	},
}

// Resolved is a submission mapped onto the canonical field set.
type Resolved struct {
	CaseID        string
	Level         string
	Diagnosis     string
	StudentCode   string
	Group         string
	ReportedTotal float64
	Domains       model.DomainScores
	IllnessScript string
	Hypotheses    string
	Treatment     string
	Biases        []string

	// Found lists canonical fields present under one of their aliases.
	Found map[string]bool
	// Coerced lists score fields that were present but not numeric and defaulted to 0.
	Coerced []string
}

// Resolve maps a raw submission onto the canonical field set. Missing keys at any
// depth fall back to typed defaults; only text that is not a JSON object fails.
func Resolve(raw []byte) (*Resolved, error) {
	doc, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	r := &Resolved{Found: make(map[string]bool, len(fieldTable))}
	for _, f := range fieldTable {
		v, ok := lookup(doc, f.paths, f.kind)
		if ok {
			r.Found[f.name] = true
		}
		switch f.kind {
		case kindIdent, kindText:
			*f.text(r) = textValue(v, ok, f.kind)
		case kindSerialized:
			*f.text(r) = serializedValue(v, ok)
		case kindScore:
			n, numeric := 0.0, false
			if ok {
				n, numeric = CoerceScore(v)
				if !numeric {
					r.Coerced = append(r.Coerced, f.name)
				}
			}
			*f.num(r) = n
		case kindList:
			if ok {
				*f.list(r) = NormalizeBiases(v)
			} else {
				*f.list(r) = []string{}
			}
		}
	}
	return r, nil
}

// lookup returns the first alias path that exists with a value acceptable for kind.
func lookup(doc gjson.Result, paths []string, kind fieldKind) (gjson.Result, bool) {
	for _, p := range paths {
		v := doc.Get(p)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if accepts(v, kind) {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func accepts(v gjson.Result, kind fieldKind) bool {
	switch kind {
	case kindScore:
		return v.Type == gjson.Number || v.Type == gjson.String
	case kindIdent, kindText:
		switch v.Type {
		case gjson.Number, gjson.True, gjson.False:
			return true
		case gjson.String:
			return strings.TrimSpace(v.Str) != ""
		}
		return false
	case kindList:
		return v.IsArray() || v.Type == gjson.String
	default:
		if v.Type == gjson.String {
			return strings.TrimSpace(v.Str) != ""
		}
		return true
	}
}

func textValue(v gjson.Result, ok bool, kind fieldKind) string {
	if !ok {
		if kind == kindIdent {
			return model.NotAvailable
		}
		return ""
	}
	return strings.TrimSpace(v.String())
}

func serializedValue(v gjson.Result, ok bool) string {
	if !ok {
		return ""
	}
	if v.Type == gjson.String {
		return strings.TrimSpace(v.Str)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(v.Raw)); err != nil {
		return v.Raw
	}
	return buf.String()
}

// parseObject accepts the pasted text, tolerating a surrounding markdown code
// fence, and requires a top-level JSON object.
func parseObject(raw []byte) (gjson.Result, error) {
	text := stripFence(bytes.TrimSpace(raw))
	if len(text) == 0 {
		return gjson.Result{}, &ErrMalformedInput{Err: errors.New("empty input")}
	}
	var probe json.RawMessage
	if err := json.Unmarshal(text, &probe); err != nil {
		return gjson.Result{}, &ErrMalformedInput{Err: err}
	}
	doc := gjson.ParseBytes(text)
	if !doc.IsObject() {
		return gjson.Result{}, &ErrMalformedInput{Err: fmt.Errorf("top-level value is %s, want object", typeName(doc))}
	}
	return doc, nil
}

func stripFence(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	} else {
		return b
	}
	b = bytes.TrimSpace(b)
	b = bytes.TrimSuffix(b, []byte("```"))
	return bytes.TrimSpace(b)
}

func typeName(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.Type == gjson.String:
		return "string"
	case v.Type == gjson.Number:
		return "number"
	case v.Type == gjson.True || v.Type == gjson.False:
		return "boolean"
	case v.Type == gjson.Null:
		return "null"
	}
	return "unknown"
}
