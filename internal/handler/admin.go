package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/accrt/portal/internal/dataset"
	appI18n "github.com/accrt/portal/internal/i18n"
	"github.com/accrt/portal/internal/model"
	"github.com/accrt/portal/internal/portal"
)

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (model.Filter, bool) {
	f, err := dataset.ParseFilter(r.URL.Query(), h.portal.Location())
	if err != nil {
		var fe *dataset.FilterError
		param := ""
		if errors.As(err, &fe) {
			param = fe.Param
		}
		writeError(w, http.StatusBadRequest, appI18n.Td(r.Context(), "InvalidFilter", map[string]any{"Param": param}))
		return f, false
	}
	return f, true
}

// query parses the request filter and runs it, writing the error response
// itself when it fails.
func (h *Handler) query(w http.ResponseWriter, r *http.Request) (*dataset.Dataset, bool) {
	f, ok := h.parseFilter(w, r)
	if !ok {
		return nil, false
	}
	ds, err := h.portal.Query(r.Context(), model.SessionFromContext(r.Context()), f)
	if err != nil {
		h.queryError(w, r, err)
		return nil, false
	}
	return ds, true
}

func (h *Handler) queryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, portal.ErrForbidden) {
		writeError(w, http.StatusForbidden, appI18n.T(r.Context(), "LoginRequired"))
		return
	}
	slog.Error("failed to load records", "error", err)
	writeError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "StoreUnavailable"))
}

type recordsResponse struct {
	Count   int           `json:"count"`
	Message string        `json:"message"`
	Rows    []dataset.Row `json:"rows"`
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.query(w, r)
	if !ok {
		return
	}
	msg := appI18n.Tp(r.Context(), "RecordsFound", ds.Len())
	if ds.Len() == 0 {
		msg = appI18n.T(r.Context(), "NoData")
	}
	writeJSON(w, http.StatusOK, recordsResponse{Count: ds.Len(), Message: msg, Rows: ds.Rows})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	rep, err := h.portal.Report(r.Context(), model.SessionFromContext(r.Context()), f)
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleBiases(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.query(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dataset.RankBiases(h.portal.BiasFrequency(ds)))
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.portal.Options(r.Context(), model.SessionFromContext(r.Context()))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.query(w, r)
	if !ok {
		return
	}
	name := fmt.Sprintf("registros_%s.csv", time.Now().In(h.portal.Location()).Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := dataset.WriteCSV(w, ds); err != nil {
		slog.Error("export csv", "error", err)
	}
}
