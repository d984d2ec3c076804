package views

import (
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examfix/internal/i18n"
	"github.com/pavelanni/examfix/internal/model"
	"github.com/pavelanni/examfix/internal/scope"
)

func renderString(t *testing.T, c templ.Component) string {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))
	ctx = model.ContextWithBasePath(ctx, "/qa")
	ctx = model.ContextWithCSRFToken(ctx, "tok123")

	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		t.Fatalf("render: %v", err)
	}
	return sb.String()
}

func TestDashboardPage(t *testing.T) {
	d := DashboardData{
		User: &model.User{Username: "admin"},
		Scope: scope.State{
			Scope:   model.Scope{ExamID: "e1", CourseID: "c1", TypeFilter: model.TypeAll},
			Exams:   []model.Exam{{ID: "e1", Name: "JEE"}},
			Courses: []model.Course{{ID: "c1", ExamID: "e1", Name: "Physics"}},
			Candidates: []model.Candidate{
				{ID: "q1", Type: model.TypeMCQ, TopicLabel: "Kinematics", Content: model.Content{Statement: "<b>speed</b>"}},
				{ID: "q2", Type: model.TypeNAT, Content: model.Content{Statement: "plain"}},
			},
			Selected: []string{"q1"},
		},
		Run: model.RunState{
			Phase: model.PhaseCompleted,
			Outcomes: []model.Outcome{
				{ID: "q1", Status: model.OutcomeFixed, Issues: []string{"answer was wrong"}},
			},
		},
		Notice:    &Notice{Kind: "error", Text: "boom"},
		CanImport: true,
	}
	html := renderString(t, DashboardPage(d))

	for _, want := range []string{
		`&lt;b&gt;speed&lt;/b&gt;`,
		`data-status="fixed"`,
		`answer was wrong`,
		`action="/qa/scope"`,
		`action="/qa/select/toggle/q1"`,
		`href="/qa/admin/import"`,
		`value="tok123"`,
		`data-kind="error"`,
		`run-config`,
		`2 questions loaded`,
		`1 of 2 selected`,
		`<option value="e1" selected>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
	if strings.Contains(html, "<b>speed</b>") {
		t.Error("statement was not escaped")
	}
}

func TestDashboardPageEmpty(t *testing.T) {
	html := renderString(t, DashboardPage(DashboardData{User: &model.User{Username: "admin"}}))
	if !strings.Contains(html, "No questions in this scope.") {
		t.Error("expected empty checklist message")
	}
	if strings.Contains(html, "/admin/import") {
		t.Error("import link shown without an importer")
	}
}

func TestLoginPage(t *testing.T) {
	html := renderString(t, LoginPage("bad & wrong"))
	for _, want := range []string{`name="password"`, `bad &amp; wrong`, `action="/qa/login"`} {
		if !strings.Contains(html, want) {
			t.Errorf("login page missing %q", want)
		}
	}
	if strings.Contains(html, `action="/qa/logout"`) {
		t.Error("logout button shown without a user")
	}
}

func TestImportPage(t *testing.T) {
	html := renderString(t, ImportPage(&model.User{Username: "admin"}, nil))
	for _, want := range []string{`name="bank_file"`, `name="force"`, `enctype="multipart/form-data"`, `action="/qa/logout"`} {
		if !strings.Contains(html, want) {
			t.Errorf("import page missing %q", want)
		}
	}
}
