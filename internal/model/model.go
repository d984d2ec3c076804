package model

import (
	"context"
	"time"
)

// User is the authenticated operator of the admin tool.
type User struct {
	Username string
	LoginAt  time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// QuestionType is the answer format of a question.
type QuestionType string

const (
	TypeMCQ        QuestionType = "MCQ"
	TypeMSQ        QuestionType = "MSQ"
	TypeNAT        QuestionType = "NAT"
	TypeSubjective QuestionType = "Subjective"
)

// QuestionTypes lists every known question type in display order.
var QuestionTypes = []QuestionType{TypeMCQ, TypeMSQ, TypeNAT, TypeSubjective}

// TypeFilter narrows candidates to one question type. TypeAll disables the filter.
type TypeFilter string

// TypeAll matches every question type.
const TypeAll TypeFilter = "all"

// ParseTypeFilter converts user input into a TypeFilter. Unknown or empty values mean TypeAll.
func ParseTypeFilter(s string) TypeFilter {
	for _, t := range QuestionTypes {
		if string(t) == s {
			return TypeFilter(t)
		}
	}
	return TypeAll
}

// Matches reports whether a question of type t passes the filter.
func (f TypeFilter) Matches(t QuestionType) bool {
	return f == TypeAll || f == "" || string(f) == string(t)
}

// Exam is a top-level exam (e.g. an entrance test).
type Exam struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Course belongs to an exam; questions reach a course through topic → chapter → course.
type Course struct {
	ID     string `json:"id"`
	ExamID string `json:"exam_id"`
	Name   string `json:"name"`
}

// Scope is the (exam, course, type filter) triple that narrows the candidate set.
type Scope struct {
	ExamID     string     `json:"exam_id"`
	CourseID   string     `json:"course_id"`
	TypeFilter TypeFilter `json:"type_filter"`
}

// Content holds the correctable fields of a question.
type Content struct {
	Statement string             `json:"statement"`
	Options   Optional[[]string] `json:"options"`
	Answer    Optional[string]   `json:"answer"`
	Solution  Optional[string]   `json:"solution"`
}

// Candidate is a question eligible for validation in the current scope.
// Candidates are snapshots: a reload replaces them, nothing edits them in place.
type Candidate struct {
	ID         string       `json:"id"`
	TopicID    string       `json:"topic_id"`
	TopicLabel string       `json:"topic_label"`
	Type       QuestionType `json:"type"`
	Content
	CreatedAt time.Time `json:"created_at"`
}

// Preview returns the first n runes of the statement.
func (c Candidate) Preview(n int) string {
	r := []rune(c.Statement)
	if len(r) <= n {
		return c.Statement
	}
	return string(r[:n])
}

// Correction is the repaired content proposed by the validation service.
// Absent fields keep the original value.
type Correction struct {
	Statement Optional[string]   `json:"statement"`
	Options   Optional[[]string] `json:"options"`
	Answer    Optional[string]   `json:"answer"`
	Solution  Optional[string]   `json:"solution"`
}

// Apply overlays the correction onto c and returns the result.
func (cr Correction) Apply(c Content) Content {
	out := c
	if cr.Statement.Valid && cr.Statement.Value != "" {
		out.Statement = cr.Statement.Value
	}
	if cr.Options.Valid {
		out.Options = Some(append([]string(nil), cr.Options.Value...))
	}
	if cr.Answer.Valid {
		out.Answer = cr.Answer
	}
	if cr.Solution.Valid {
		out.Solution = cr.Solution
	}
	return out
}

// IsEmpty reports whether the correction carries no field at all.
func (cr Correction) IsEmpty() bool {
	return !cr.Statement.Valid && !cr.Options.Valid && !cr.Answer.Valid && !cr.Solution.Valid
}

// OutcomeStatus tracks one item through a run.
type OutcomeStatus string

const (
	OutcomePending  OutcomeStatus = "pending"
	OutcomeChecking OutcomeStatus = "checking"
	OutcomeValid    OutcomeStatus = "valid"
	OutcomeFixed    OutcomeStatus = "fixed"
	OutcomeFailed   OutcomeStatus = "failed"
)

// Terminal reports whether the status is final for the run.
func (s OutcomeStatus) Terminal() bool {
	return s == OutcomeValid || s == OutcomeFixed || s == OutcomeFailed
}

// Outcome is the per-item result of a validation/correction attempt.
type Outcome struct {
	ID        string        `json:"id"`
	Status    OutcomeStatus `json:"status"`
	IsValid   bool          `json:"is_valid"`
	Issues    []string      `json:"issues"`
	Corrected *Content      `json:"corrected,omitempty"`
}

// RunPhase is the lifecycle state of a batch run.
type RunPhase string

const (
	PhaseIdle      RunPhase = "idle"
	PhaseRunning   RunPhase = "running"
	PhasePaused    RunPhase = "paused"
	PhaseCompleted RunPhase = "completed"
	PhaseStopped   RunPhase = "stopped"
)

// RunProgress is the aggregate state of the active or last run.
type RunProgress struct {
	CurrentIndex   int    `json:"current_index"`
	TotalCount     int    `json:"total_count"`
	CurrentPreview string `json:"current_preview"`
	ValidCount     int    `json:"valid_count"`
	FixedCount     int    `json:"fixed_count"`
	FailedCount    int    `json:"failed_count"`
	IsRunning      bool   `json:"is_running"`
	IsPaused       bool   `json:"is_paused"`
}

// Done returns the number of items in a terminal state.
func (p RunProgress) Done() int {
	return p.ValidCount + p.FixedCount + p.FailedCount
}

// RunState is the authoritative snapshot of a batch run.
type RunState struct {
	RunID      string      `json:"run_id,omitempty"`
	Phase      RunPhase    `json:"phase"`
	Progress   RunProgress `json:"progress"`
	Outcomes   []Outcome   `json:"outcomes"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// AppConfig holds runtime settings for the web front end.
type AppConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/qa")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	AdminUser     string
	AdminHash     []byte // bcrypt hash of the admin password
	SessionTTL    time.Duration
}
