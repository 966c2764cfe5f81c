package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/accrt/portal/internal/i18n"
	"github.com/accrt/portal/internal/model"
	"github.com/accrt/portal/internal/portal"
	"github.com/accrt/portal/internal/store"
	"github.com/accrt/portal/internal/submission"
)

// Config holds HTTP surface settings.
type Config struct {
	// DocentUser and DocentPassword gate the query endpoints. The password may
	// be plain text or a bcrypt hash.
	DocentUser     string
	DocentPassword string
	BasePath       string
	SecureCookies  bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	portal       *portal.Service
	config       Config
	passwordHash []byte
	sessions     *sessionStore
}

// New creates a new Handler. Without a docent password the query endpoints
// reject every login.
func New(p *portal.Service, cfg Config) (*Handler, error) {
	h := &Handler{portal: p, config: cfg, sessions: newSessionStore()}
	if cfg.DocentPassword != "" {
		hash, err := HashPassword(cfg.DocentPassword)
		if err != nil {
			return nil, fmt.Errorf("hash docent password: %w", err)
		}
		h.passwordHash = hash
	} else {
		slog.Warn("no docent password configured, docent endpoints are disabled")
	}
	return h, nil
}

// HashPassword returns pw as a bcrypt hash, keeping it as is when it already
// is one.
func HashPassword(pw string) ([]byte, error) {
	if _, err := bcrypt.Cost([]byte(pw)); err == nil {
		return []byte(pw), nil
	}
	return bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/api/submissions", h.handleSubmit)
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireDocent)
		r.Get("/api/records", h.handleRecords)
		r.Get("/api/summary", h.handleSummary)
		r.Get("/api/biases", h.handleBiases)
		r.Get("/api/options", h.handleOptions)
		r.Get("/api/export.csv", h.handleExportCSV)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// submitRequest is the body of POST /api/submissions. JSON holds the pasted
// simulator evaluation, either as a string or as an embedded object.
type submitRequest struct {
	JSON  json.RawMessage `json:"json"`
	Code  string          `json:"code"`
	Name  string          `json:"name"`
	Group string          `json:"group"`
	Start string          `json:"start"`
	End   string          `json:"end"`
}

type submitResponse struct {
	*model.Confirmation
	Message string `json:"message"`
}

func (req submitRequest) raw() string {
	var s string
	if err := json.Unmarshal(req.JSON, &s); err == nil {
		return s
	}
	return string(req.JSON)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidJSON"))
		return
	}

	conf, err := h.portal.Submit(r.Context(), req.raw(),
		model.Identity{Code: req.Code, Name: req.Name, Group: req.Group},
		model.AuditTimes{Start: req.Start, End: req.End},
	)
	if err != nil {
		h.submitError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		Confirmation: conf,
		Message:      appI18n.Td(r.Context(), "SubmissionSaved", map[string]any{"Total": conf.Record.Composite.Total}),
	})
}

func (h *Handler) submitError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		malformed *submission.ErrMalformedInput
		invalid   *submission.ErrValidation
		mismatch  *store.ErrSchemaMismatch
	)
	switch {
	case errors.As(err, &malformed):
		slog.Info("rejected submission", "reason", "malformed", "error", err)
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidJSON"))
	case errors.As(err, &invalid):
		slog.Info("rejected submission", "reason", "validation", "field", invalid.Field)
		writeError(w, http.StatusUnprocessableEntity, appI18n.T(r.Context(), "MissingIdentity"))
	case errors.As(err, &mismatch):
		slog.Error("store needs migration", "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "StoreNeedsMigration"))
	case store.IsUnavailable(err):
		slog.Error("failed to store submission", "error", err)
		writeError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "StoreUnavailable"))
	default:
		slog.Error("submission failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
