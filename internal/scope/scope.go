// Package scope tracks which exam questions are loaded and which are selected
// for a validation run.
package scope

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pavelanni/examfix/internal/model"
)

// ErrRunActive rejects scope changes while a validation run is in progress.
var ErrRunActive = errors.New("cannot change scope while a validation run is in progress")

// LoadError reports a failed listing. The model keeps its previous state.
type LoadError struct {
	What string // "exams", "courses" or "questions"
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.What, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Lister reads the question hierarchy.
type Lister interface {
	ListExams(ctx context.Context) ([]model.Exam, error)
	ListCourses(ctx context.Context, examID string) ([]model.Course, error)
	ListCandidates(ctx context.Context, courseID string, filter model.TypeFilter) ([]model.Candidate, error)
}

// Guard reports whether a validation run is active.
type Guard interface {
	IsRunning() bool
}

// State is a copy of the model's contents.
type State struct {
	Scope      model.Scope       `json:"scope"`
	Exams      []model.Exam      `json:"exams"`
	Courses    []model.Course    `json:"courses"`
	Candidates []model.Candidate `json:"candidates"`
	Selected   []string          `json:"selected"`
}

// IsSelected reports whether id is in the selection.
func (s State) IsSelected(id string) bool {
	for _, sel := range s.Selected {
		if sel == id {
			return true
		}
	}
	return false
}

// Model holds the scope, the candidate set and the selection.
type Model struct {
	lister Lister
	guard  Guard

	mu         sync.Mutex
	scope      model.Scope
	exams      []model.Exam
	courses    []model.Course
	candidates []model.Candidate
	selected   map[string]bool
}

// New creates a Model. guard may be nil, in which case scope changes are never rejected.
func New(l Lister, g Guard) *Model {
	return &Model{
		lister:   l,
		guard:    g,
		scope:    model.Scope{TypeFilter: model.TypeAll},
		selected: make(map[string]bool),
	}
}

func (m *Model) running() bool {
	return m.guard != nil && m.guard.IsRunning()
}

// LoadExams fetches the exam list.
func (m *Model) LoadExams(ctx context.Context) error {
	exams, err := m.lister.ListExams(ctx)
	if err != nil {
		return &LoadError{What: "exams", Err: err}
	}
	m.mu.Lock()
	m.exams = exams
	m.mu.Unlock()
	return nil
}

// SetScope applies a new scope. Changing the exam reloads its courses. The
// requested course is kept only if it belongs to the selected exam, otherwise
// it is cleared. Changing the course or type filter reloads the candidates and
// clears the selection. On error nothing changes.
func (m *Model) SetScope(ctx context.Context, next model.Scope) error {
	if m.running() {
		return ErrRunActive
	}
	if next.TypeFilter == "" {
		next.TypeFilter = model.TypeAll
	}

	m.mu.Lock()
	cur := m.scope
	courses := m.courses
	m.mu.Unlock()

	examChanged := next.ExamID != cur.ExamID
	if examChanged {
		courses = nil
		if next.ExamID != "" {
			var err error
			courses, err = m.lister.ListCourses(ctx, next.ExamID)
			if err != nil {
				return &LoadError{What: "courses", Err: err}
			}
		}
	}
	if !containsCourse(courses, next.CourseID) {
		next.CourseID = ""
	}

	reload := examChanged || next.CourseID != cur.CourseID || next.TypeFilter != cur.TypeFilter
	if !reload {
		return nil
	}

	var candidates []model.Candidate
	if next.CourseID != "" {
		var err error
		candidates, err = m.lister.ListCandidates(ctx, next.CourseID, next.TypeFilter)
		if err != nil {
			return &LoadError{What: "questions", Err: err}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A run may have started while the listing was in flight.
	if m.running() {
		return ErrRunActive
	}
	m.scope = next
	m.courses = courses
	m.replaceCandidatesLocked(candidates)
	return nil
}

// Refresh re-issues the candidate listing for the current scope.
func (m *Model) Refresh(ctx context.Context) error {
	if m.running() {
		return ErrRunActive
	}
	m.mu.Lock()
	cur := m.scope
	m.mu.Unlock()
	if cur.CourseID == "" {
		return nil
	}

	candidates, err := m.lister.ListCandidates(ctx, cur.CourseID, cur.TypeFilter)
	if err != nil {
		return &LoadError{What: "questions", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running() {
		return ErrRunActive
	}
	m.replaceCandidatesLocked(candidates)
	return nil
}

func (m *Model) replaceCandidatesLocked(c []model.Candidate) {
	if c == nil {
		c = []model.Candidate{}
	}
	m.candidates = c
	m.selected = make(map[string]bool)
}

func containsCourse(courses []model.Course, id string) bool {
	for _, c := range courses {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Toggle flips the selection of one candidate. Unknown ids are ignored.
// It reports whether id is selected afterwards.
func (m *Model) Toggle(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasCandidateLocked(id) {
		return false
	}
	if m.selected[id] {
		delete(m.selected, id)
		return false
	}
	m.selected[id] = true
	return true
}

func (m *Model) hasCandidateLocked(id string) bool {
	for _, c := range m.candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

// SelectAll selects every loaded candidate.
func (m *Model) SelectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.candidates {
		m.selected[c.ID] = true
	}
}

// SelectNone clears the selection.
func (m *Model) SelectNone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = make(map[string]bool)
}

// Selected returns the selected candidates in list order.
func (m *Model) Selected() []model.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Candidate
	for _, c := range m.candidates {
		if m.selected[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot returns a copy of the model.
func (m *Model) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{
		Scope:      m.scope,
		Exams:      append([]model.Exam{}, m.exams...),
		Courses:    append([]model.Course{}, m.courses...),
		Candidates: append([]model.Candidate{}, m.candidates...),
		Selected:   []string{},
	}
	for _, c := range m.candidates {
		if m.selected[c.ID] {
			st.Selected = append(st.Selected, c.ID)
		}
	}
	return st
}
