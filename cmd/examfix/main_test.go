package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/examfix/internal/store"
)

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"qa", "/qa"},
		{"/qa/", "/qa"},
		{" /qa ", "/qa"},
	}
	for _, tt := range tests {
		if got := normalizeBasePath(tt.in); got != tt.want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

const bankJSON = `{"exams":[{"name":"JEE","courses":[{"name":"Physics","chapters":[{"name":"Optics","topics":[{"name":"Lenses","questions":[
  {"statement":"Focal length of a plane mirror?","type":"NAT","answer":"infinity"},
  {"statement":"Pick the converging lens","type":"MCQ","options":["concave","convex"],"answer":"B"}
]}]}]}]}]}`

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	db, err := store.New(filepath.Join(dir, "bank.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()

	path := filepath.Join(dir, "bank.json")
	if err := os.WriteFile(path, []byte(bankJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := importFile(ctx, db, path, false); err != nil {
		t.Fatalf("importFile: %v", err)
	}
	if n, _ := db.QuestionCount(); n != 2 {
		t.Fatalf("expected 2 questions, got %d", n)
	}

	// Unchanged file is skipped.
	if err := importFile(ctx, db, path, false); err != nil {
		t.Fatalf("importFile again: %v", err)
	}
	if n, _ := db.QuestionCount(); n != 2 {
		t.Errorf("unchanged file re-imported: %d questions", n)
	}

	if err := importFile(ctx, db, path, true); err != nil {
		t.Fatalf("importFile --force: %v", err)
	}
	if n, _ := db.QuestionCount(); n != 4 {
		t.Errorf("forced import should append, got %d questions", n)
	}

	bad := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(bad, []byte("not json"), 0o644)
	if err := importFile(ctx, db, bad, false); err == nil {
		t.Error("expected parse error")
	}
}
