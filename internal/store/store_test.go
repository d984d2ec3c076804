package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/examfix/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBank() model.BankImport {
	return model.BankImport{Exams: []model.ExamImport{
		{
			Name: "JEE",
			Courses: []model.CourseImport{
				{
					Name: "Physics",
					Chapters: []model.ChapterImport{{
						Name: "Mechanics",
						Topics: []model.TopicImport{{
							Name: "Kinematics",
							Questions: []model.QuestionImport{
								{Statement: "First MCQ", Type: model.TypeMCQ, Options: model.Some([]string{"1", "2", "3", "4"}), Answer: model.Some("A")},
								{Statement: "NAT question", Type: model.TypeNAT, Answer: model.Some("9.8")},
								{Statement: "Second MCQ", Type: model.TypeMCQ, Options: model.Some([]string{"a", "b"}), Answer: model.Some("B"), Solution: model.Some("because")},
							},
						}},
					}},
				},
				{Name: "Chemistry"},
			},
		},
		{Name: "NEET"},
	}}
}

func seedTestBank(t *testing.T, s *Store) (courseID string) {
	t.Helper()
	ctx := context.Background()
	n, err := s.ImportBank(ctx, testBank())
	if err != nil {
		t.Fatalf("ImportBank: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 imported questions, got %d", n)
	}
	exams, err := s.ListExams(ctx)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	courses, err := s.ListCourses(ctx, exams[0].ID)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	for _, c := range courses {
		if c.Name == "Physics" {
			return c.ID
		}
	}
	t.Fatal("Physics course not found")
	return ""
}

func TestListExamsAndCourses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exams, err := s.ListExams(ctx)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 0 {
		t.Fatalf("expected no exams, got %d", len(exams))
	}

	seedTestBank(t, s)

	exams, err = s.ListExams(ctx)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 2 {
		t.Fatalf("expected 2 exams, got %d", len(exams))
	}
	if exams[0].Name != "JEE" || exams[1].Name != "NEET" {
		t.Errorf("exams not ordered by name: %+v", exams)
	}

	courses, err := s.ListCourses(ctx, exams[0].ID)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("expected 2 courses, got %d", len(courses))
	}
	if courses[0].Name != "Chemistry" {
		t.Errorf("expected Chemistry first, got %q", courses[0].Name)
	}

	none, err := s.ListCourses(ctx, exams[1].ID)
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no courses for NEET, got %d", len(none))
	}
}

func TestListCandidatesFiltered(t *testing.T) {
	s := newTestStore(t)
	courseID := seedTestBank(t, s)

	tests := []struct {
		name      string
		filter    model.TypeFilter
		wantCount int
	}{
		{"all", model.TypeAll, 3},
		{"empty filter", "", 3},
		{"MCQ", model.TypeFilter(model.TypeMCQ), 2},
		{"NAT", model.TypeFilter(model.TypeNAT), 1},
		{"no match", model.TypeFilter(model.TypeSubjective), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListCandidates(context.Background(), courseID, tt.filter)
			if err != nil {
				t.Fatalf("ListCandidates: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("expected %d candidates, got %d", tt.wantCount, len(got))
			}
		})
	}
}

func TestListCandidatesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	courseID := seedTestBank(t, s)

	got, err := s.ListCandidates(context.Background(), courseID, model.TypeAll)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	want := []string{"Second MCQ", "NAT question", "First MCQ"}
	for i, w := range want {
		if got[i].Statement != w {
			t.Errorf("position %d: expected %q, got %q", i, w, got[i].Statement)
		}
	}
	if got[0].TopicLabel != "Kinematics" {
		t.Errorf("expected topic label Kinematics, got %q", got[0].TopicLabel)
	}
}

func TestListCandidatesOptionalFields(t *testing.T) {
	s := newTestStore(t)
	courseID := seedTestBank(t, s)

	got, err := s.ListCandidates(context.Background(), courseID, model.TypeFilter(model.TypeNAT))
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	nat := got[0]
	if nat.Options.Valid {
		t.Errorf("expected absent options for NAT, got %v", nat.Options.Value)
	}
	if nat.Solution.Valid {
		t.Errorf("expected absent solution, got %q", nat.Solution.Value)
	}
	if v, ok := nat.Answer.Get(); !ok || v != "9.8" {
		t.Errorf("expected answer 9.8, got %q (present=%v)", v, ok)
	}

	mcqs, err := s.ListCandidates(context.Background(), courseID, model.TypeFilter(model.TypeMCQ))
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(mcqs[0].Options.Value) != 2 || mcqs[0].Options.Value[1] != "b" {
		t.Errorf("unexpected options: %v", mcqs[0].Options.Value)
	}
}

func TestUpdateCandidate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	courseID := seedTestBank(t, s)

	list, _ := s.ListCandidates(ctx, courseID, model.TypeFilter(model.TypeNAT))
	id := list[0].ID

	err := s.UpdateCandidate(ctx, id, model.Content{
		Statement: "NAT question, fixed",
		Options:   model.None[[]string](),
		Answer:    model.Some("9.81"),
		Solution:  model.Some("g at sea level"),
	})
	if err != nil {
		t.Fatalf("UpdateCandidate: %v", err)
	}

	got, err := s.GetCandidate(ctx, id)
	if err != nil {
		t.Fatalf("GetCandidate: %v", err)
	}
	if got.Statement != "NAT question, fixed" {
		t.Errorf("statement not updated: %q", got.Statement)
	}
	if got.Answer.Or("") != "9.81" {
		t.Errorf("answer not updated: %q", got.Answer.Or(""))
	}
	if got.Solution.Or("") != "g at sea level" {
		t.Errorf("solution not updated: %q", got.Solution.Or(""))
	}
	if got.Options.Valid {
		t.Error("options should stay absent")
	}

	err = s.UpdateCandidate(ctx, "missing", model.Content{Statement: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestImportIsAdditive(t *testing.T) {
	s := newTestStore(t)
	seedTestBank(t, s)

	// Re-importing reuses the hierarchy and appends questions.
	if _, err := s.ImportBank(context.Background(), testBank()); err != nil {
		t.Fatalf("ImportBank: %v", err)
	}
	exams, _ := s.ListExams(context.Background())
	if len(exams) != 2 {
		t.Errorf("expected 2 exams after re-import, got %d", len(exams))
	}
	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 6 {
		t.Errorf("expected 6 questions, got %d", count)
	}
}

func TestImportRejectsEmptyStatement(t *testing.T) {
	s := newTestStore(t)
	bank := model.BankImport{Exams: []model.ExamImport{{
		Name: "E",
		Courses: []model.CourseImport{{Name: "C", Chapters: []model.ChapterImport{{
			Name: "Ch", Topics: []model.TopicImport{{Name: "T", Questions: []model.QuestionImport{
				{Statement: "ok", Type: model.TypeNAT},
				{Statement: "", Type: model.TypeNAT},
			}}},
		}}}},
	}}}
	if _, err := s.ImportBank(context.Background(), bank); err == nil {
		t.Fatal("expected error for empty statement")
	}
	count, _ := s.QuestionCount()
	if count != 0 {
		t.Errorf("expected rollback, got %d questions", count)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("bank.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("bank.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash("bank.json", "def"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("bank.json")
	if hash != "def" {
		t.Errorf("expected hash def, got %q", hash)
	}
}

func TestOpenPicksBackend(t *testing.T) {
	b, err := Open(context.Background(), ":memory:", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*Store); !ok {
		t.Errorf("expected *Store for a file path, got %T", b)
	}

	if !isPostgresDSN("postgres://u:p@localhost/db") || !isPostgresDSN("postgresql://localhost/db") {
		t.Error("postgres URLs not detected")
	}
	if isPostgresDSN("examfix.db") {
		t.Error("file path detected as postgres")
	}
}

func TestParseURL(t *testing.T) {
	if _, err := ParseURL(""); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := ParseURL("postgres://u:p@localhost:5432/db?sslmode=disable"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
