package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examfix/internal/model"
)

// ImportBank inserts a whole exam → course → chapter → topic → question tree in
// one transaction and returns the number of questions written. Questions get
// increasing creation times in file order, so the last question in the file
// is listed first.
func (s *Store) ImportBank(ctx context.Context, bank model.BankImport) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	base := time.Now().UTC()
	n := 0
	for _, e := range bank.Exams {
		examID, err := s.findOrCreate(ctx, tx, `SELECT id FROM exams WHERE name = ?`, []any{e.Name},
			`INSERT INTO exams (id, name) VALUES (?, ?)`, e.Name)
		if err != nil {
			return 0, fmt.Errorf("exam %q: %w", e.Name, err)
		}
		for _, c := range e.Courses {
			courseID, err := s.findOrCreate(ctx, tx, `SELECT id FROM courses WHERE exam_id = ? AND name = ?`, []any{examID, c.Name},
				`INSERT INTO courses (id, exam_id, name) VALUES (?, ?, ?)`, examID, c.Name)
			if err != nil {
				return 0, fmt.Errorf("course %q: %w", c.Name, err)
			}
			for _, ch := range c.Chapters {
				chapterID, err := s.findOrCreate(ctx, tx, `SELECT id FROM chapters WHERE course_id = ? AND name = ?`, []any{courseID, ch.Name},
					`INSERT INTO chapters (id, course_id, name) VALUES (?, ?, ?)`, courseID, ch.Name)
				if err != nil {
					return 0, fmt.Errorf("chapter %q: %w", ch.Name, err)
				}
				for _, t := range ch.Topics {
					topicID, err := s.findOrCreate(ctx, tx, `SELECT id FROM topics WHERE chapter_id = ? AND name = ?`, []any{chapterID, t.Name},
						`INSERT INTO topics (id, chapter_id, name) VALUES (?, ?, ?)`, chapterID, t.Name)
					if err != nil {
						return 0, fmt.Errorf("topic %q: %w", t.Name, err)
					}
					for _, q := range t.Questions {
						if err := insertQuestion(ctx, tx, topicID, q, base.Add(time.Duration(n)*time.Millisecond)); err != nil {
							return 0, fmt.Errorf("topic %q: %w", t.Name, err)
						}
						n++
					}
				}
			}
		}
	}
	return n, tx.Commit()
}

// findOrCreate returns the id of the row matched by lookup, inserting a new row
// with a fresh uuid when none exists. insertArgs follow the id column.
func (s *Store) findOrCreate(ctx context.Context, tx *sql.Tx, lookup string, lookupArgs []any, insert string, insertArgs ...any) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, lookup, lookupArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx, insert, append([]any{id}, insertArgs...)...); err != nil {
		return "", err
	}
	return id, nil
}

func insertQuestion(ctx context.Context, tx *sql.Tx, topicID string, q model.QuestionImport, createdAt time.Time) error {
	if q.Statement == "" {
		return fmt.Errorf("question without statement")
	}
	opts, err := encodeOptions(q.Options)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO questions (id, topic_id, statement, type, options, answer, solution, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), topicID, q.Statement, q.Type, opts,
		nullableString(q.Answer), nullableString(q.Solution), createdAt, createdAt,
	)
	return err
}
