package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	got := T(ctx, "MissingIdentity")
	if got != "Ingresa tu código de estudiante antes de enviar." {
		t.Errorf("T(MissingIdentity) = %q", got)
	}
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "LoginError")
	if got != "Invalid username or password." {
		t.Errorf("T(LoginError) = %q", got)
	}
}

func TestSubmitterMessagesAreDistinct(t *testing.T) {
	for _, lang := range []string{"es", "en"} {
		ctx := initLang(t, lang)
		seen := map[string]bool{}
		for _, id := range []string{"InvalidJSON", "MissingIdentity", "StoreUnavailable"} {
			msg := T(ctx, id)
			if msg == id {
				t.Errorf("%s: missing translation for %s", lang, id)
			}
			if seen[msg] {
				t.Errorf("%s: duplicate message %q", lang, msg)
			}
			seen[msg] = true
		}
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "es")

	if got := Tp(ctx, "RecordsFound", 1); got != "1 registro encontrado." {
		t.Errorf("Tp(RecordsFound, 1) = %q", got)
	}
	if got := Tp(ctx, "RecordsFound", 5); got != "5 registros encontrados." {
		t.Errorf("Tp(RecordsFound, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "SubmissionSaved", map[string]any{"Total": 8})
	if got != "Evaluation saved. Total score: 8 / 10." {
		t.Errorf("Td(SubmissionSaved) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "es")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewarePrefersAcceptLanguage(t *testing.T) {
	if err := Init("es"); err != nil {
		t.Fatal(err)
	}
	var got string
	h := Middleware("es")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "LoginRequired")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Docent access only." {
		t.Errorf("with Accept-Language en got %q", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "Acceso restringido a docentes." {
		t.Errorf("without Accept-Language got %q", got)
	}
}
