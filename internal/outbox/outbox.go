// Package outbox relays question events that were persisted in the same
// transaction as the mutation that produced them.
//
// Writers call Store.Append inside their unit of work. The Relay drains
// pending entries in id order, publishes each to the broker and marks it
// published. An entry is only marked once the broker accepted it, so a crash
// between publish and mark republishes; consumers tolerate duplicates.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"overflow/pkg/events"
)

// Entry is one persisted event awaiting publication.
type Entry struct {
	// ID is assigned by the store and increases monotonically. The relay
	// stamps it on the envelope as the event sequence.
	ID          int64
	EventID     uuid.UUID
	AggregateID string
	Kind        events.Kind
	Payload     []byte
	OccurredAt  time.Time
	Attempts    int
}

// Envelope rebuilds the wire envelope for the entry.
func (e Entry) Envelope() events.Envelope {
	return events.Envelope{
		ID:         e.EventID,
		Kind:       e.Kind,
		QuestionID: e.AggregateID,
		Sequence:   e.ID,
		OccurredAt: e.OccurredAt,
		Payload:    e.Payload,
	}
}

// PublishFunc publishes one entry. A returned error leaves the entry pending.
type PublishFunc func(ctx context.Context, entry Entry) error

// Store persists and drains outbox entries.
type Store interface {
	// Append persists env. Implementations join the transaction carried by
	// ctx when there is one.
	Append(ctx context.Context, env events.Envelope) error
	// Drain hands up to limit pending entries to publish in id order,
	// stopping at the first failure so later entries never overtake it.
	// It returns how many entries were marked published.
	Drain(ctx context.Context, limit int, publish PublishFunc) (int, error)
}
