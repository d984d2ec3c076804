package model

import (
	"encoding/json"
	"testing"
)

func TestParseTypeFilter(t *testing.T) {
	tests := []struct {
		in   string
		want TypeFilter
	}{
		{"MCQ", TypeFilter(TypeMCQ)},
		{"Subjective", TypeFilter(TypeSubjective)},
		{"all", TypeAll},
		{"", TypeAll},
		{"mcq", TypeAll},
	}
	for _, tt := range tests {
		if got := ParseTypeFilter(tt.in); got != tt.want {
			t.Errorf("ParseTypeFilter(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if !TypeAll.Matches(TypeNAT) || !TypeFilter("").Matches(TypeMSQ) {
		t.Error("empty and all filters should match every type")
	}
	if TypeFilter(TypeMCQ).Matches(TypeMSQ) {
		t.Error("MCQ filter should not match MSQ")
	}
}

func TestCorrectionApply(t *testing.T) {
	orig := Content{
		Statement: "2+2?",
		Options:   Some([]string{"3", "4"}),
		Answer:    Some("A"),
	}

	t.Run("absent fields keep original", func(t *testing.T) {
		got := Correction{Answer: Some("B")}.Apply(orig)
		if got.Answer.Or("") != "B" {
			t.Errorf("answer = %q", got.Answer.Or(""))
		}
		if got.Statement != "2+2?" || len(got.Options.Value) != 2 || got.Solution.Valid {
			t.Errorf("untouched fields changed: %+v", got)
		}
	})

	t.Run("empty statement ignored", func(t *testing.T) {
		got := Correction{Statement: Some("")}.Apply(orig)
		if got.Statement != "2+2?" {
			t.Errorf("statement = %q", got.Statement)
		}
	})

	t.Run("options copied", func(t *testing.T) {
		opts := []string{"1", "2", "4"}
		got := Correction{Options: Some(opts), Solution: Some("sum")}.Apply(orig)
		opts[0] = "changed"
		if got.Options.Value[0] != "1" {
			t.Error("applied options alias the correction slice")
		}
		if got.Solution.Or("") != "sum" {
			t.Errorf("solution = %q", got.Solution.Or(""))
		}
	})

	if !(Correction{}).IsEmpty() || (Correction{Answer: Some("")}).IsEmpty() {
		t.Error("IsEmpty mismatch")
	}
}

func TestOptionalJSON(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`{"statement":"x","options":null,"answer":"C"}`), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Options.Valid {
		t.Error("null options should be absent")
	}
	if c.Solution.Valid {
		t.Error("missing solution should be absent")
	}
	if v, ok := c.Answer.Get(); !ok || v != "C" {
		t.Errorf("answer = %q, %v", v, ok)
	}

	out, err := json.Marshal(Content{Statement: "y", Options: Some([]string{})})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"statement":"y","options":[],"answer":null,"solution":null}`
	if string(out) != want {
		t.Errorf("Marshal = %s, want %s", out, want)
	}
}

func TestCandidatePreview(t *testing.T) {
	c := Candidate{Content: Content{Statement: "Ускорение свободного падения"}}
	if got := c.Preview(9); got != "Ускорение" {
		t.Errorf("Preview(9) = %q", got)
	}
	if got := c.Preview(100); got != c.Statement {
		t.Errorf("short statement should be returned whole, got %q", got)
	}
}

func TestRunProgressDone(t *testing.T) {
	p := RunProgress{TotalCount: 5, ValidCount: 1, FixedCount: 2, FailedCount: 1}
	if p.Done() != 4 {
		t.Errorf("Done() = %d", p.Done())
	}
	for _, s := range []OutcomeStatus{OutcomeValid, OutcomeFixed, OutcomeFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if OutcomePending.Terminal() || OutcomeChecking.Terminal() {
		t.Error("pending/checking must not be terminal")
	}
}
