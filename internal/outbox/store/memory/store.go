package memory

import (
	"context"
	"sync"

	"overflow/internal/outbox"
	"overflow/pkg/events"
)

// Store is an in-memory outbox. Drains are serialized.
type Store struct {
	mu      sync.Mutex
	drainMu sync.Mutex
	nextID  int64
	pending []outbox.Entry
	sent    []outbox.Entry
}

var _ outbox.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) Append(ctx context.Context, env events.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.pending = append(s.pending, outbox.Entry{
		ID:          s.nextID,
		EventID:     env.ID,
		AggregateID: env.QuestionID,
		Kind:        env.Kind,
		Payload:     append([]byte(nil), env.Payload...),
		OccurredAt:  env.OccurredAt,
	})
	return nil
}

func (s *Store) Drain(ctx context.Context, limit int, publish outbox.PublishFunc) (int, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.mu.Lock()
	n := min(limit, len(s.pending))
	batch := append([]outbox.Entry(nil), s.pending[:n]...)
	s.mu.Unlock()

	published := 0
	for _, entry := range batch {
		err := publish(ctx, entry)

		s.mu.Lock()
		s.pending[0].Attempts++
		if err != nil {
			s.mu.Unlock()
			return published, err
		}
		s.sent = append(s.sent, s.pending[0])
		s.pending = s.pending[1:]
		s.mu.Unlock()
		published++
	}
	return published, nil
}

// Pending returns a copy of the unpublished entries.
func (s *Store) Pending() []outbox.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Entry(nil), s.pending...)
}

// Published returns a copy of the entries already relayed.
func (s *Store) Published() []outbox.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Entry(nil), s.sent...)
}
