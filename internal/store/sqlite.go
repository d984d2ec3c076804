package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/examfix/internal/model"

	_ "modernc.org/sqlite"
)

// Store is a SQLite question bank, used for local work and tests.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		chapter_id TEXT NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (chapter_id) REFERENCES chapters(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL,
		statement TEXT NOT NULL,
		type TEXT NOT NULL,
		options TEXT,
		answer TEXT,
		solution TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (topic_id) REFERENCES topics(id)
	);

	CREATE INDEX IF NOT EXISTS idx_questions_topic ON questions(topic_id);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ListExams returns all exams ordered by name.
func (s *Store) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM exams ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListCourses returns the courses of an exam ordered by name.
func (s *Store) ListCourses(ctx context.Context, examID string) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exam_id, name FROM courses WHERE exam_id = ? ORDER BY name`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.ExamID, &c.Name); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// ListCandidates returns the questions of a course, newest first.
// An empty filter or model.TypeAll returns every type.
func (s *Store) ListCandidates(ctx context.Context, courseID string, filter model.TypeFilter) ([]model.Candidate, error) {
	query := `SELECT q.id, q.topic_id, t.name, q.statement, q.type, q.options, q.answer, q.solution, q.created_at
		FROM questions q
		JOIN topics t ON t.id = q.topic_id
		JOIN chapters ch ON ch.id = t.chapter_id
		WHERE ch.course_id = ?`
	args := []any{courseID}
	if filter != "" && filter != model.TypeAll {
		query += ` AND q.type = ?`
		args = append(args, string(filter))
	}
	query += ` ORDER BY q.created_at DESC, q.rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCandidate returns one question by ID.
func (s *Store) GetCandidate(ctx context.Context, id string) (model.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT q.id, q.topic_id, t.name, q.statement, q.type, q.options, q.answer, q.solution, q.created_at
		 FROM questions q JOIN topics t ON t.id = q.topic_id WHERE q.id = ?`, id)
	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(r rowScanner) (model.Candidate, error) {
	var (
		c                         model.Candidate
		options, answer, solution sql.NullString
	)
	if err := r.Scan(&c.ID, &c.TopicID, &c.TopicLabel, &c.Statement, &c.Type,
		&options, &answer, &solution, &c.CreatedAt); err != nil {
		return c, err
	}
	opts, err := decodeOptions(nullToPtr(options))
	if err != nil {
		return c, fmt.Errorf("question %s: %w", c.ID, err)
	}
	c.Options = opts
	c.Answer = optionalString(nullToPtr(answer))
	c.Solution = optionalString(nullToPtr(solution))
	return c, nil
}

func nullToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// UpdateCandidate overwrites the content fields of a question.
func (s *Store) UpdateCandidate(ctx context.Context, id string, c model.Content) error {
	opts, err := encodeOptions(c.Options)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET statement = ?, options = ?, answer = ?, solution = ?, updated_at = ? WHERE id = ?`,
		c.Statement, opts, nullableString(c.Answer), nullableString(c.Solution), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
