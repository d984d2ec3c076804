// Package store reads question candidates from a relational question bank and
// writes corrected content back to it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/examfix/internal/model"
)

// ErrNotFound is returned when an update targets a question that does not exist.
var ErrNotFound = errors.New("question not found")

// Backend is the question bank as seen by the scope model and the batch runner.
type Backend interface {
	ListExams(ctx context.Context) ([]model.Exam, error)
	ListCourses(ctx context.Context, examID string) ([]model.Course, error)
	// ListCandidates returns the questions of a course, newest first.
	ListCandidates(ctx context.Context, courseID string, filter model.TypeFilter) ([]model.Candidate, error)
	UpdateCandidate(ctx context.Context, id string, c model.Content) error
	Close() error
}

// Options tunes backend connections.
type Options struct {
	MaxConns int
	MinConns int
}

// Open picks a backend by DSN: postgres:// and postgresql:// URLs open a
// PostgreSQL pool, anything else is treated as a SQLite database path.
func Open(ctx context.Context, dsn string, opts Options) (Backend, error) {
	if isPostgresDSN(dsn) {
		pg, err := NewPostgres(ctx, dsn, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := New(dsn)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// encodeOptions converts options to a nullable JSON text column value.
func encodeOptions(o model.Optional[[]string]) (*string, error) {
	if !o.Valid {
		return nil, nil
	}
	vals := o.Value
	if vals == nil {
		vals = []string{}
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	s := string(b)
	return &s, nil
}

func decodeOptions(raw *string) (model.Optional[[]string], error) {
	if raw == nil {
		return model.None[[]string](), nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(*raw), &vals); err != nil {
		return model.None[[]string](), fmt.Errorf("decode options: %w", err)
	}
	return model.Some(vals), nil
}

func optionalString(s *string) model.Optional[string] {
	if s == nil {
		return model.None[string]()
	}
	return model.Some(*s)
}

func nullableString(o model.Optional[string]) *string {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}
