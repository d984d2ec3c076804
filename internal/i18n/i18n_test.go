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

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Question Fixer" {
		t.Errorf("T(AppTitle) = %q, want 'Question Fixer'", got)
	}
	if got := T(ctx, "Start"); got != "Start validation" {
		t.Errorf("T(Start) = %q, want 'Start validation'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "AppTitle"); got != "Проверка вопросов" {
		t.Errorf("T(AppTitle) = %q, want 'Проверка вопросов'", got)
	}
	if got := T(ctx, "Stop"); got != "Остановить" {
		t.Errorf("T(Stop) = %q, want 'Остановить'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsLoaded", 1); got != "1 question loaded" {
		t.Errorf("Tp(QuestionsLoaded, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsLoaded", 5); got != "5 questions loaded" {
		t.Errorf("Tp(QuestionsLoaded, 5) = %q", got)
	}

	ru := initLang(t, "ru")
	if got := Tp(ru, "QuestionsLoaded", 5); got != "Загружено 5 вопросов" {
		t.Errorf("Tp(QuestionsLoaded, 5) ru = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "SelectedCount", map[string]any{"Selected": 2, "Total": 7})
	if got != "2 of 7 selected" {
		t.Errorf("Td(SelectedCount) = %q, want '2 of 7 selected'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMatch(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		prefs []string
		want  string
	}{
		{nil, "en"},
		{[]string{"ru"}, "ru"},
		{[]string{"ru-RU"}, "ru"},
		{[]string{"de"}, "en"},
		{[]string{"not a tag"}, "en"},
	}
	for _, tt := range tests {
		if got := Match(tt.prefs...); got != tt.want {
			t.Errorf("Match(%v) = %q, want %q", tt.prefs, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	var title string
	h := Middleware("en", "", false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = T(r.Context(), "AppTitle")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if title != "Question Fixer" {
		t.Errorf("default title = %q", title)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lang=ru", nil))
	if title != "Проверка вопросов" {
		t.Errorf("?lang=ru title = %q", title)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "ru" {
		t.Fatalf("expected lang cookie, got %v", cookies)
	}
	if cookies[0].Path != "/" || cookies[0].Secure {
		t.Errorf("cookie path=%q secure=%v, want / and false", cookies[0].Path, cookies[0].Secure)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)
	if title != "Проверка вопросов" {
		t.Errorf("cookie title = %q", title)
	}
}

func TestMiddlewareCookieFollowsBasePath(t *testing.T) {
	initLang(t, "en")

	h := Middleware("en", "/qa", true)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/qa/?lang=ru", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %v", cookies)
	}
	if cookies[0].Path != "/qa/" {
		t.Errorf("cookie path = %q, want /qa/", cookies[0].Path)
	}
	if !cookies[0].Secure {
		t.Error("expected Secure cookie")
	}
}
