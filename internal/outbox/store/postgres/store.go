package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"overflow/internal/outbox"
	"overflow/pkg/events"
	txcontext "overflow/pkg/platform/tx"
)

const maxErrorLen = 1024

// Store keeps outbox entries in the outbox table. Rows are claimed with
// FOR UPDATE SKIP LOCKED so several relays can drain concurrently without
// publishing the same row twice.
type Store struct {
	db *sql.DB
}

var _ outbox.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes the envelope to the outbox table.
func (s *Store) Append(ctx context.Context, env events.Envelope) error {
	query := `
		INSERT INTO outbox (event_id, aggregate_id, kind, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := txcontext.ExecerFrom(ctx, s.db).ExecContext(ctx, query,
		env.ID,
		env.QuestionID,
		string(env.Kind),
		[]byte(env.Payload),
		env.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *Store) Drain(ctx context.Context, limit int, publish outbox.PublishFunc) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox drain: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	entries, err := claimPending(ctx, tx, limit)
	if err != nil {
		return 0, err
	}

	published := 0
	var publishErr error
	for _, entry := range entries {
		if err := publish(ctx, entry); err != nil {
			publishErr = err
			if markErr := markFailed(ctx, tx, entry.ID, err); markErr != nil {
				return 0, errors.Join(err, markErr)
			}
			break
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE outbox SET published_at = now(), attempts = attempts + 1 WHERE id = $1`,
			entry.ID,
		); err != nil {
			return 0, fmt.Errorf("mark outbox entry %d published: %w", entry.ID, err)
		}
		published++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox drain: %w", err)
	}
	return published, publishErr
}

func claimPending(ctx context.Context, tx *sql.Tx, limit int) ([]outbox.Entry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_id, aggregate_id, kind, payload, occurred_at, attempts
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []outbox.Entry
	for rows.Next() {
		var (
			e    outbox.Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateID, &kind, &e.Payload, &e.OccurredAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Kind = events.Kind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

func markFailed(ctx context.Context, tx *sql.Tx, id int64, cause error) error {
	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, msg,
	)
	if err != nil {
		return fmt.Errorf("mark outbox entry %d failed: %w", id, err)
	}
	return nil
}

// Pending counts entries not yet published.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox entries: %w", err)
	}
	return n, nil
}
