package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"overflow/internal/tags/models"
	"overflow/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore reads and writes the tags table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, tag *models.Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, slug, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, tag.ID, tag.Slug, tag.Name, tag.Description, tag.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, name, description, created_at
		FROM tags
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var out []*models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return out, nil
}

// ListSlugs feeds the tag cache.
func (s *PostgresStore) ListSlugs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug FROM tags`)
	if err != nil {
		return nil, fmt.Errorf("query tag slugs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan tag slug: %w", err)
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}
