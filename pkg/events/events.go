// Package events defines the question domain events exchanged between the
// question service and its subscribers.
//
// Every event travels inside an Envelope whose Kind is the only
// discriminator consumers switch on. Payloads are schema'd per kind and
// decoded explicitly; unknown kinds are rejected rather than guessed.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the event variants carried by an Envelope.
type Kind string

const (
	KindQuestionCreated    Kind = "question.created"
	KindQuestionUpdated    Kind = "question.updated"
	KindQuestionDeleted    Kind = "question.deleted"
	KindAnswerCountChanged Kind = "question.answer_count_changed"
	KindAnswerAccepted     Kind = "question.answer_accepted"
)

// Exchange is the logical exchange all question events are published to.
const Exchange = "questions"

var (
	ErrUnknownKind = errors.New("unknown event kind")
	ErrMalformed   = errors.New("malformed event")
)

// AllKinds lists every kind in production order of a question lifecycle.
func AllKinds() []Kind {
	return []Kind{
		KindQuestionCreated,
		KindQuestionUpdated,
		KindQuestionDeleted,
		KindAnswerCountChanged,
		KindAnswerAccepted,
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindQuestionCreated, KindQuestionUpdated, KindQuestionDeleted,
		KindAnswerCountChanged, KindAnswerAccepted:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Envelope is the wire artifact crossing the broker.
//
// Sequence is stamped by the outbox relay from the outbox row id. It is the
// production-order token consumers use to discard stale or duplicate events.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	QuestionID string          `json:"question_id"`
	Sequence   int64           `json:"sequence"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Payload is implemented by every event variant.
type Payload interface {
	Kind() Kind
}

// QuestionCreated is emitted once a question row is committed.
type QuestionCreated struct {
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Tags      []string  `json:"tags"`
}

func (QuestionCreated) Kind() Kind { return KindQuestionCreated }

// QuestionUpdated carries the editable fields only.
type QuestionUpdated struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func (QuestionUpdated) Kind() Kind { return KindQuestionUpdated }

type QuestionDeleted struct{}

func (QuestionDeleted) Kind() Kind { return KindQuestionDeleted }

// AnswerCountChanged carries the question's answer count after the change.
type AnswerCountChanged struct {
	NewCount int `json:"new_count"`
}

func (AnswerCountChanged) Kind() Kind { return KindAnswerCountChanged }

type AnswerAccepted struct{}

func (AnswerAccepted) Kind() Kind { return KindAnswerAccepted }

// New wraps a payload into an envelope with a fresh event id.
func New(questionID string, payload Payload, occurredAt time.Time) (Envelope, error) {
	if questionID == "" {
		return Envelope{}, fmt.Errorf("%w: question id is required", ErrMalformed)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", payload.Kind(), err)
	}
	return Envelope{
		ID:         uuid.New(),
		Kind:       payload.Kind(),
		QuestionID: questionID,
		OccurredAt: occurredAt.UTC(),
		Payload:    raw,
	}, nil
}

// Encode serializes an envelope for the broker.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses and validates an envelope. The payload is left raw; use
// Envelope.DecodePayload to obtain the variant.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !env.Kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if env.QuestionID == "" {
		return Envelope{}, fmt.Errorf("%w: missing question_id", ErrMalformed)
	}
	return env, nil
}

// DecodePayload returns the variant matching the envelope kind.
func (e Envelope) DecodePayload() (Payload, error) {
	switch e.Kind {
	case KindQuestionCreated:
		return decodeAs[QuestionCreated](e.Payload)
	case KindQuestionUpdated:
		return decodeAs[QuestionUpdated](e.Payload)
	case KindQuestionDeleted:
		return QuestionDeleted{}, nil
	case KindAnswerCountChanged:
		return decodeAs[AnswerCountChanged](e.Payload)
	case KindAnswerAccepted:
		return AnswerAccepted{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty %s payload", ErrMalformed, p.Kind())
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, p.Kind(), err)
	}
	return p, nil
}
