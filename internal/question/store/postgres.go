package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"overflow/internal/question/models"
	"overflow/pkg/platform/sentinel"
	txcontext "overflow/pkg/platform/tx"
)

// PostgresStore persists questions and answers. Every method joins the
// transaction carried by ctx, if any.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Execer {
	return txcontext.ExecerFrom(ctx, s.db)
}

const questionColumns = `id, title, content, asker_id, asker_display_name, created_at, updated_at,
	view_count, votes, answer_count, has_accepted_answer, tag_slugs`

func (s *PostgresStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO questions (`+questionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		q.ID, q.Title, q.Content, q.AskerID, q.AskerDisplayName, q.CreatedAt, q.UpdatedAt,
		q.ViewCount, q.Votes, q.AnswerCount, q.HasAcceptedAnswer, pq.Array(q.TagSlugs),
	)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, tag string) ([]*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions`
	var args []any
	if tag != "" {
		query += ` WHERE $1 = ANY(tag_slugs)`
		args = append(args, tag)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

// FindQuestion locks the row when called inside a transaction so concurrent
// writers to the same question serialize.
func (s *PostgresStore) FindQuestion(ctx context.Context, id string) (*models.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	q, err := scanQuestion(s.execer(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return q, err
}

func (s *PostgresStore) IncrementViewCount(ctx context.Context, id string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `UPDATE questions SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, q *models.Question) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE questions
		SET title = $2, content = $3, tag_slugs = $4, updated_at = $5
		WHERE id = $1
	`, q.ID, q.Title, q.Content, pq.Array(q.TagSlugs), q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return requireRow(res)
}

const answerColumns = `id, question_id, content, user_id, user_display_name, created_at, updated_at, accepted`

func (s *PostgresStore) ListAnswers(ctx context.Context, questionID string) ([]*models.Answer, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE question_id = $1 ORDER BY created_at`, questionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []*models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateAnswer(ctx context.Context, a *models.Answer) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO answers (`+answerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.QuestionID, a.Content, a.UserID, a.UserDisplayName, a.CreatedAt, a.UpdatedAt, a.Accepted)
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindAnswer(ctx context.Context, id string) (*models.Answer, error) {
	a, err := scanAnswer(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) UpdateAnswer(ctx context.Context, a *models.Answer) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE answers SET content = $2, updated_at = $3 WHERE id = $1`, a.ID, a.Content, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update answer: %w", err)
	}
	return requireRow(res)
}

// DeleteAnswer refuses to remove an accepted answer.
func (s *PostgresStore) DeleteAnswer(ctx context.Context, id string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM answers WHERE id = $1 AND NOT accepted`, id)
	if err != nil {
		return fmt.Errorf("delete answer: %w", err)
	}
	if err := requireRow(res); err != nil {
		if _, findErr := s.FindAnswer(ctx, id); findErr == nil {
			return sentinel.ErrInvalidState
		}
		return err
	}
	return nil
}

func (s *PostgresStore) AdjustAnswerCount(ctx context.Context, questionID string, delta int) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE questions SET answer_count = answer_count + $2
		WHERE id = $1
		RETURNING answer_count
	`, questionID, delta).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust answer count: %w", err)
	}
	return count, nil
}

// AcceptAnswer flips both flags. The conditional update on the question makes
// a second acceptance fail even under concurrent requests.
func (s *PostgresStore) AcceptAnswer(ctx context.Context, questionID, answerID string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE questions SET has_accepted_answer = TRUE
		WHERE id = $1 AND NOT has_accepted_answer
	`, questionID)
	if err != nil {
		return fmt.Errorf("accept answer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrInvalidState
	}
	res, err = s.execer(ctx).ExecContext(ctx,
		`UPDATE answers SET accepted = TRUE WHERE id = $1 AND question_id = $2`, answerID, questionID)
	if err != nil {
		return fmt.Errorf("mark answer accepted: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	var (
		q         models.Question
		updatedAt sql.NullTime
		tags      pq.StringArray
	)
	err := row.Scan(&q.ID, &q.Title, &q.Content, &q.AskerID, &q.AskerDisplayName, &q.CreatedAt, &updatedAt,
		&q.ViewCount, &q.Votes, &q.AnswerCount, &q.HasAcceptedAnswer, &tags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan question: %w", err)
	}
	if updatedAt.Valid {
		q.UpdatedAt = &updatedAt.Time
	}
	q.TagSlugs = []string(tags)
	return &q, nil
}

func scanAnswer(row rowScanner) (*models.Answer, error) {
	var (
		a         models.Answer
		updatedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.QuestionID, &a.Content, &a.UserID, &a.UserDisplayName, &a.CreatedAt, &updatedAt, &a.Accepted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan answer: %w", err)
	}
	if updatedAt.Valid {
		a.UpdatedAt = &updatedAt.Time
	}
	return &a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
