package store

import (
	"strings"

	"github.com/accrt/portal/internal/coerce"
	"github.com/accrt/portal/internal/model"
	"github.com/accrt/portal/internal/submission"
)

// SchemaVersion is the version of the column contract written by this build.
const SchemaVersion = 2

// Column is one position of the stored row contract. Aliases are header names
// used by earlier revisions of the tool; they are only read, never written.
type Column struct {
	Name    string
	Since   int
	Aliases []string
}

// Column names, in contract order.
const (
	ColDate           = "fecha"
	ColTime           = "hora"
	ColGroup          = "grupo"
	ColCode           = "codigo"
	ColName           = "nombre"
	ColCaseID         = "caso_id"
	ColLevel          = "nivel"
	ColDiagnosis      = "dx_real"
	ColTotal          = "puntaje_total"
	ColDiagnostic     = "puntaje_diagnostico"
	ColTherapeutic    = "puntaje_terapeutico"
	ColCollection     = "score_recoleccion"
	ColSynthesis      = "score_sintesis"
	ColHypothesis     = "score_hipotesis"
	ColInterpretation = "score_interpretacion"
	ColManagement     = "score_manejo"
	ColBiases         = "sesgos"
	ColIllnessScript  = "illness_script"
	ColRawJSON        = "json_raw"
	ColStart          = "hora_inicio"
	ColEnd            = "hora_fin"
	ColDuration       = "duracion_minutos"
	ColHypotheses     = "hipotesis"
	ColTreatment      = "manejo"
	ColSubmissionID   = "id_envio"
)

// Columns is the fixed, load-bearing column order. New columns are only ever
// appended at the end with a higher Since.
var Columns = []Column{
	{Name: ColDate, Since: 1, Aliases: []string{"Fecha_Registro", "Fecha"}},
	{Name: ColTime, Since: 1, Aliases: []string{"Hora", "Hora_Registro"}},
	{Name: ColGroup, Since: 1, Aliases: []string{"Grupo", "Grupo_Rotacion"}},
	{Name: ColCode, Since: 1, Aliases: []string{"Codigo", "Código", "Estudiante_ID"}},
	{Name: ColName, Since: 1, Aliases: []string{"Nombre", "Estudiante"}},
	{Name: ColCaseID, Since: 1, Aliases: []string{"Caso_ID", "Caso"}},
	{Name: ColLevel, Since: 1, Aliases: []string{"Nivel"}},
	{Name: ColDiagnosis, Since: 1, Aliases: []string{"Dx_Real", "Diagnostico_Real"}},
	{Name: ColTotal, Since: 1, Aliases: []string{"Puntaje_Total", "Total"}},
	{Name: ColDiagnostic, Since: 1, Aliases: []string{"Puntaje_Diagnostico", "Score_Diagnostico"}},
	{Name: ColTherapeutic, Since: 1, Aliases: []string{"Puntaje_Terapeutico", "Score_Terapeutico"}},
	{Name: ColCollection, Since: 1, Aliases: []string{"Score_Recoleccion"}},
	{Name: ColSynthesis, Since: 1, Aliases: []string{"Score_Sintesis"}},
	{Name: ColHypothesis, Since: 1, Aliases: []string{"Score_Hipotesis"}},
	{Name: ColInterpretation, Since: 1, Aliases: []string{"Score_Interp", "Score_Interpretacion"}},
	{Name: ColManagement, Since: 1, Aliases: []string{"Score_Manejo"}},
	{Name: ColBiases, Since: 1, Aliases: []string{"Sesgos"}},
	{Name: ColIllnessScript, Since: 1, Aliases: []string{"Illness_Script"}},
	{Name: ColRawJSON, Since: 1, Aliases: []string{"JSON_Raw"}},
	{Name: ColStart, Since: 2, Aliases: []string{"Hora_Inicio"}},
	{Name: ColEnd, Since: 2, Aliases: []string{"Hora_Fin"}},
	{Name: ColDuration, Since: 2, Aliases: []string{"Duracion_Minutos"}},
	{Name: ColHypotheses, Since: 2, Aliases: []string{"Hipotesis"}},
	{Name: ColTreatment, Since: 2, Aliases: []string{"Manejo"}},
	{Name: ColSubmissionID, Since: 2},
}

// Header returns the current column names in order.
func Header() []string {
	h := make([]string, len(Columns))
	for i, c := range Columns {
		h[i] = c.Name
	}
	return h
}

// RecordRow renders a record as cells in contract order.
func RecordRow(rec model.Record) []string {
	duration := ""
	if rec.Audit.HasDuration {
		duration = coerce.FormatNumber(rec.Audit.DurationMinutes)
	}
	return []string{
		rec.Audit.Date,
		rec.Audit.Time,
		rec.Identity.Group,
		rec.Identity.Code,
		rec.Identity.Name,
		rec.Identity.CaseID,
		rec.Identity.Level,
		rec.Identity.Diagnosis,
		coerce.FormatNumber(rec.Composite.Total),
		coerce.FormatNumber(rec.Composite.Diagnostic),
		coerce.FormatNumber(rec.Composite.Therapeutic),
		coerce.FormatNumber(rec.Domains.Collection),
		coerce.FormatNumber(rec.Domains.Synthesis),
		coerce.FormatNumber(rec.Domains.Hypothesis),
		coerce.FormatNumber(rec.Domains.Interpretation),
		coerce.FormatNumber(rec.Domains.Management),
		submission.FormatBiases(rec.Trace.Biases),
		rec.Trace.IllnessScript,
		rec.RawJSON,
		rec.Audit.Start,
		rec.Audit.End,
		duration,
		rec.Trace.Hypotheses,
		rec.Trace.Management,
		rec.SubmissionID,
	}
}

// SameHeader reports whether header is exactly the current contract.
func SameHeader(header []string) bool {
	if len(header) != len(Columns) {
		return false
	}
	for i, c := range Columns {
		if strings.TrimSpace(header[i]) != c.Name {
			return false
		}
	}
	return true
}

// Positions maps each contract column name to its index in header, matching
// current names and aliases case-insensitively. Columns absent from header are
// not in the map.
func Positions(header []string) map[string]int {
	lookup := make(map[string]string)
	for _, c := range Columns {
		lookup[strings.ToLower(c.Name)] = c.Name
		for _, a := range c.Aliases {
			lookup[strings.ToLower(a)] = c.Name
		}
	}
	pos := make(map[string]int, len(Columns))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		name, ok := lookup[h]
		if !ok {
			continue
		}
		if _, seen := pos[name]; !seen {
			pos[name] = i
		}
	}
	return pos
}

// Normalize returns the table's rows re-laid into the current contract order.
// Cells of columns the table does not have are empty.
func (t *Table) Normalize() [][]string {
	pos := Positions(t.Header)
	out := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]string, len(Columns))
		for j, c := range Columns {
			i, ok := pos[c.Name]
			if ok && i < len(row) {
				cells[j] = row[i]
			}
		}
		out = append(out, cells)
	}
	return out
}

func emptyTable() *Table {
	return &Table{Header: Header(), Rows: [][]string{}}
}
