package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavelanni/examfix/internal/model"
)

const dbTimeout = 10 * time.Second

// Postgres reads and updates a question bank in an existing PostgreSQL schema
// (exams, courses, chapters, topics, questions). It never migrates.
type Postgres struct {
	pool *pgxpool.Pool
}

// ParseURL validates a PostgreSQL connection URL.
func ParseURL(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	return cfg, nil
}

// NewPostgres creates a connection pool and verifies it with a ping.
func NewPostgres(ctx context.Context, url string, maxConns, minConns int) (*Postgres, error) {
	cfg, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	if minConns > 0 {
		cfg.MinConns = int32(minConns)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close shuts down the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// HealthCheck verifies the database connection is alive.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) ListExams(ctx context.Context) ([]model.Exam, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT id::text, name FROM exams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

func (p *Postgres) ListCourses(ctx context.Context, examID string) ([]model.Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		`SELECT id::text, exam_id::text, name FROM courses WHERE exam_id::text = $1 ORDER BY name`, examID)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.ExamID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (p *Postgres) ListCandidates(ctx context.Context, courseID string, filter model.TypeFilter) ([]model.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT q.id::text, q.topic_id::text, t.name, q.statement, q.type, q.options::text, q.answer, q.solution, q.created_at
		FROM questions q
		JOIN topics t ON t.id = q.topic_id
		JOIN chapters ch ON ch.id = t.chapter_id
		WHERE ch.course_id::text = $1`
	args := []any{courseID}
	if filter != "" && filter != model.TypeAll {
		query += ` AND q.type = $2`
		args = append(args, string(filter))
	}
	query += ` ORDER BY q.created_at DESC`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var (
			c                         model.Candidate
			qType                     string
			options, answer, solution *string
		)
		if err := rows.Scan(&c.ID, &c.TopicID, &c.TopicLabel, &c.Statement, &qType,
			&options, &answer, &solution, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Type = model.QuestionType(qType)
		opts, err := decodeOptions(options)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", c.ID, err)
		}
		c.Options = opts
		c.Answer = optionalString(answer)
		c.Solution = optionalString(solution)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateCandidate(ctx context.Context, id string, c model.Content) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	opts, err := encodeOptions(c.Options)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE questions
		 SET statement = $1, options = $2::jsonb, answer = $3, solution = $4, updated_at = $5
		 WHERE id::text = $6`,
		c.Statement, opts, nullableString(c.Answer), nullableString(c.Solution), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// withTx runs fn inside a transaction; used by the integration test fixtures.
func (p *Postgres) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
