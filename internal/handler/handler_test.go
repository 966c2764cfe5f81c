package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/accrt/portal/internal/i18n"
	"github.com/accrt/portal/internal/portal"
	"github.com/accrt/portal/internal/roster"
	"github.com/accrt/portal/internal/store"
	"github.com/accrt/portal/internal/submission"
)

const caseC12 = `{"metadata":{"caso_id":"C12"},"evaluacion_cri_ht_s":{"recoleccion_datos":{"puntaje":2},"representacion_problema":{"puntaje":1},"generacion_hipotesis":{"puntaje":2},"interpretacion_datos":{"puntaje":1},"toma_decisiones":{"puntaje":2}}}`

type testServer struct {
	router http.Handler
	store  store.Store
}

func newTestServer(t *testing.T, storePath string) *testServer {
	t.Helper()
	if err := appI18n.Init("es"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	if storePath == "" {
		storePath = filepath.Join(t.TempDir(), "registros.csv")
	}
	s := store.OpenCSV(storePath)
	loc := time.FixedZone("COT", -5*3600)
	b := submission.NewBuilder(roster.New(map[string]string{"1001": "Ana Pérez"}), loc)
	svc := portal.New(s, b, portal.Config{Location: loc, RetryBackoff: time.Millisecond})

	h, err := New(svc, Config{DocentUser: "docente", DocentPassword: "secreto"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("es"))
	h.Routes(r)
	return &testServer{router: r, store: s}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) submit(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/submissions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, req)
}

func (ts *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {"docente"}, "password": {"secreto"}}
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ts.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("login set no session cookie")
	return nil
}

func (ts *testServer) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return ts.do(t, req)
}

func submitBody(t *testing.T, raw, code, group string) string {
	t.Helper()
	b, err := json.Marshal(map[string]string{"json": raw, "code": code, "group": group})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestSubmitCreated(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.submit(t, submitBody(t, caseC12, "1001", "c"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SubmissionID string `json:"submission_id"`
		Message      string `json:"message"`
		Record       struct {
			Composite struct {
				Total float64 `json:"total"`
			} `json:"composite"`
		} `json:"record"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SubmissionID == "" || resp.Record.Composite.Total != 8 {
		t.Errorf("unexpected response %+v", resp)
	}
	if !strings.Contains(resp.Message, "8 / 10") {
		t.Errorf("message = %q", resp.Message)
	}

	tbl, err := ts.store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(tbl.Rows) != 1 {
		t.Errorf("expected exactly one stored row, got %d", len(tbl.Rows))
	}
}

func TestSubmitEmbeddedObject(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.submit(t, `{"code": "1001", "json": `+caseC12+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitRejections(t *testing.T) {
	ts := newTestServer(t, "")
	tests := []struct {
		name   string
		body   string
		status int
		msgID  string
	}{
		{"invalid pasted json", submitBody(t, "{esto no es json", "1001", "A"), http.StatusBadRequest, "InvalidJSON"},
		{"pasted array", submitBody(t, "[1, 2]", "1001", "A"), http.StatusBadRequest, "InvalidJSON"},
		{"unreadable body", "not json at all", http.StatusBadRequest, "InvalidJSON"},
		{"missing code", submitBody(t, caseC12, "", "A"), http.StatusUnprocessableEntity, "MissingIdentity"},
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("es"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.submit(t, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got, want := errorMessage(t, rec), appI18n.T(ctx, tt.msgID); got != want {
				t.Errorf("message = %q, want %q", got, want)
			}
		})
	}
}

func TestSubmitStoreUnavailable(t *testing.T) {
	ts := newTestServer(t, filepath.Join(t.TempDir(), "no", "such", "dir.csv"))
	rec := ts.submit(t, submitBody(t, caseC12, "1001", "A"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(errorMessage(t, rec), "No se pudo guardar") {
		t.Errorf("unexpected message %q", errorMessage(t, rec))
	}
}

func TestDocentEndpointsRequireLogin(t *testing.T) {
	ts := newTestServer(t, "")
	for _, path := range []string{"/api/records", "/api/summary", "/api/biases", "/api/options", "/api/export.csv"} {
		rec := ts.get(t, path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without session: status %d", path, rec.Code)
		}
	}
	bogus := &http.Cookie{Name: sessionCookieName, Value: "deadbeef"}
	if rec := ts.get(t, "/api/records", bogus); rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus session: status %d", rec.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"docente","password":"otra"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("failed login must not set a cookie")
	}
}

func TestRecordsWithFilters(t *testing.T) {
	ts := newTestServer(t, "")
	for _, g := range []string{"A", "B", "A"} {
		if rec := ts.submit(t, submitBody(t, caseC12, "1001", g)); rec.Code != http.StatusCreated {
			t.Fatalf("submit status %d", rec.Code)
		}
	}
	cookie := ts.login(t)

	rec := ts.get(t, "/api/records?group=A", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp recordsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Rows) != 2 {
		t.Errorf("count = %d, rows = %d, want 2", resp.Count, len(resp.Rows))
	}
	if resp.Message != "2 registros encontrados." {
		t.Errorf("message = %q", resp.Message)
	}

	rec = ts.get(t, "/api/records?min_total=9", cookie)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 || resp.Message != "No hay datos para los filtros seleccionados." {
		t.Errorf("unexpected empty response %+v", resp)
	}

	rec = ts.get(t, "/api/records?from=ayer", cookie)
	if rec.Code != http.StatusBadRequest || !strings.Contains(errorMessage(t, rec), "from") {
		t.Errorf("invalid date: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestSummaryAndExport(t *testing.T) {
	ts := newTestServer(t, "")
	if rec := ts.submit(t, submitBody(t, caseC12, "1001", "A")); rec.Code != http.StatusCreated {
		t.Fatalf("submit status %d", rec.Code)
	}
	cookie := ts.login(t)

	rec := ts.get(t, "/api/summary", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status %d", rec.Code)
	}
	var rep struct {
		Count     int `json:"count"`
		Summaries []struct {
			Column string  `json:"column"`
			Mean   float64 `json:"mean"`
		} `json:"summaries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Count != 1 || rep.Summaries[0].Column != store.ColTotal || rep.Summaries[0].Mean != 8 {
		t.Errorf("unexpected summary %+v", rep)
	}

	rec = ts.get(t, "/api/export.csv", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "fecha,hora,grupo,codigo") {
		t.Errorf("unexpected export:\n%s", rec.Body.String())
	}
}

func TestLogoutEndsSession(t *testing.T) {
	ts := newTestServer(t, "")
	cookie := ts.login(t)
	if rec := ts.get(t, "/api/options", cookie); rec.Code != http.StatusOK {
		t.Fatalf("options status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(cookie)
	if rec := ts.do(t, req); rec.Code != http.StatusOK {
		t.Fatalf("logout status %d", rec.Code)
	}
	if rec := ts.get(t, "/api/options", cookie); rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout status %d", rec.Code)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := newSessionStore()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	token, err := s.create("docente")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user, ok := s.get(token); !ok || user != "docente" {
		t.Fatalf("get = %q, %v", user, ok)
	}
	now = now.Add(authSessionTTL + time.Minute)
	if _, ok := s.get(token); ok {
		t.Error("expired session still valid")
	}
}

func TestHashPasswordKeepsHashes(t *testing.T) {
	hash, err := HashPassword("secreto")
	if err != nil {
		t.Fatal(err)
	}
	again, err := HashPassword(string(hash))
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(hash) {
		t.Error("existing bcrypt hash was re-hashed")
	}
}
