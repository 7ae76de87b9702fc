// Package broker defines the message transport contract shared by the
// question and search services.
//
// Delivery is at-least-once: a Delivery that is neither acked nor nacked
// before its subscription ends is redelivered. No ordering is promised
// across queues or across kinds targeting the same aggregate.
package broker

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Header keys set on every published message.
const (
	HeaderKind    = "event-kind"
	HeaderEventID = "event-id"

	HeaderError         = "x-error"
	HeaderAttempts      = "x-attempts"
	HeaderOriginalQueue = "x-original-queue"
)

var (
	ErrClosed        = errors.New("broker closed")
	ErrUnknownQueue  = errors.New("queue not declared")
	ErrAlreadyAcked  = errors.New("delivery already settled")
	ErrEmptyExchange = errors.New("exchange is required")
)

// Message is the unit handed to the broker.
type Message struct {
	Key     string
	Body    []byte
	Headers map[string]string
}

// Header returns the value for key or "".
func (m Message) Header(key string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// Clone returns a copy with its own header map.
func (m Message) Clone() Message {
	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		headers[k] = v
	}
	return Message{Key: m.Key, Body: slices.Clone(m.Body), Headers: headers}
}

// Binding routes messages from an exchange into a queue. An empty Kinds list
// binds every message published to the exchange.
type Binding struct {
	Exchange string
	Kinds    []string
}

// Matches reports whether msg published to exchange should land in the bound queue.
func (b Binding) Matches(exchange string, msg Message) bool {
	if b.Exchange != exchange {
		return false
	}
	if len(b.Kinds) == 0 {
		return true
	}
	return slices.Contains(b.Kinds, msg.Header(HeaderKind))
}

// Delivery is a message received from a queue together with its settlement
// handles. Exactly one of Ack or Nack takes effect.
type Delivery struct {
	Message
	Queue string

	once sync.Once
	ack  func(ctx context.Context) error
	nack func(ctx context.Context) error
}

// NewDelivery builds a delivery. Transports supply the settlement callbacks.
func NewDelivery(queue string, msg Message, ack, nack func(ctx context.Context) error) *Delivery {
	return &Delivery{Message: msg, Queue: queue, ack: ack, nack: nack}
}

// Ack confirms processing; the broker will not redeliver the message.
func (d *Delivery) Ack(ctx context.Context) error {
	return d.settle(ctx, d.ack)
}

// Nack hands the message back for redelivery.
func (d *Delivery) Nack(ctx context.Context) error {
	return d.settle(ctx, d.nack)
}

func (d *Delivery) settle(ctx context.Context, fn func(context.Context) error) error {
	err := ErrAlreadyAcked
	d.once.Do(func() {
		err = nil
		if fn != nil {
			err = fn(ctx)
		}
	})
	return err
}

// Publisher submits messages to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange string, msg Message) error
}

// Broker is the full transport contract.
type Broker interface {
	Publisher
	// Declare creates the queue if needed and (re)binds it.
	Declare(ctx context.Context, queue string, binding Binding) error
	// Subscribe streams deliveries from queue until ctx ends. The channel is
	// closed when the subscription stops; callers may resubscribe.
	Subscribe(ctx context.Context, queue string) (<-chan *Delivery, error)
	Close() error
}
