package handler

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/accrt/portal/internal/i18n"
	"github.com/accrt/portal/internal/model"
)

const sessionCookieName = "accrt_session"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// requireDocent is middleware that checks for a valid docent session cookie
// and passes the session on in the request context.
func (h *Handler) requireDocent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "LoginRequired"))
			return
		}
		user, ok := h.sessions.get(cookie.Value)
		if !ok {
			writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "LoginRequired"))
			return
		}
		ctx := model.ContextWithSession(r.Context(), model.Session{User: user, Docent: true})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func readLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	req.Username = r.FormValue("username")
	req.Password = r.FormValue("password")
	return req, nil
}

func (h *Handler) checkCredentials(req loginRequest) bool {
	if h.passwordHash == nil || h.config.DocentUser == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.config.DocentUser)) == 1
	passOK := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) == nil
	return userOK && passOK
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := readLogin(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "LoginError"))
		return
	}
	if !h.checkCredentials(req) {
		slog.Warn("docent login failed", "username", req.Username)
		writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "LoginError"))
		return
	}

	token, err := h.sessions.create(req.Username)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		MaxAge:   int(authSessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("docent logged in", "username", req.Username)
	writeJSON(w, http.StatusOK, map[string]string{"user": req.Username})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		h.sessions.delete(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": appI18n.T(r.Context(), "LoggedOut")})
}
