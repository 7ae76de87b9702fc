// Package memory is an in-process broker used by tests and single-binary runs.
//
// Each subscription holds at most one unsettled delivery. A nack puts the
// message back at the head of its queue. When the subscription ends while a
// handler still holds a delivery, the broker waits up to the settle timeout
// for it to be settled; a delivery still unsettled by then is requeued and a
// later Ack has no effect, so the message is delivered again.
package memory

import (
	"context"
	"sync"
	"time"

	"overflow/pkg/platform/broker"
)

type queue struct {
	binding broker.Binding
	pending []broker.Message
	wake    chan struct{}
}

// Broker fans published messages out to every matching declared queue.
type Broker struct {
	mu            sync.Mutex
	queues        map[string]*queue
	closed        bool
	done          chan struct{}
	settleTimeout time.Duration
}

const defaultSettleTimeout = 5 * time.Second

type Option func(*Broker)

// WithSettleTimeout bounds how long an ending subscription waits for its
// in-flight delivery to be settled.
func WithSettleTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.settleTimeout = d
		}
	}
}

var _ broker.Broker = (*Broker)(nil)

func New(opts ...Option) *Broker {
	b := &Broker{
		queues:        make(map[string]*queue),
		done:          make(chan struct{}),
		settleTimeout: defaultSettleTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) Declare(_ context.Context, name string, binding broker.Binding) error {
	if binding.Exchange == "" {
		return broker.ErrEmptyExchange
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.ErrClosed
	}
	if q, ok := b.queues[name]; ok {
		q.binding = binding
		return nil
	}
	b.queues[name] = &queue{binding: binding, wake: make(chan struct{})}
	return nil
}

// Publish copies msg into every queue bound to exchange. Messages published
// to an exchange with no bound queue are dropped.
func (b *Broker) Publish(ctx context.Context, exchange string, msg broker.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return broker.ErrClosed
	}
	for _, q := range b.queues {
		if !q.binding.Matches(exchange, msg) {
			continue
		}
		q.pending = append(q.pending, msg.Clone())
		q.signal()
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, name string) (<-chan *broker.Delivery, error) {
	b.mu.Lock()
	q, ok := b.queues[name]
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, broker.ErrClosed
	}
	if !ok {
		return nil, broker.ErrUnknownQueue
	}

	out := make(chan *broker.Delivery)
	go b.pump(ctx, name, q, out)
	return out, nil
}

// Pending returns the number of messages waiting in a queue.
func (b *Broker) Pending(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.pending)
	}
	return 0
}

// Drain removes and returns every waiting message in a queue.
func (b *Broker) Drain(name string) []broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	msgs := q.pending
	q.pending = nil
	return msgs
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

func (b *Broker) pump(ctx context.Context, name string, q *queue, out chan<- *broker.Delivery) {
	defer close(out)
	for {
		msg, ok := b.next(ctx, q)
		if !ok {
			return
		}

		settled := make(chan bool, 1) // true = ack, false = nack
		d := broker.NewDelivery(name, msg,
			func(context.Context) error { settled <- true; return nil },
			func(context.Context) error { settled <- false; return nil },
		)

		select {
		case out <- d:
		case <-ctx.Done():
			b.requeue(q, msg)
			return
		case <-b.done:
			b.requeue(q, msg)
			return
		}

		select {
		case acked := <-settled:
			if !acked {
				b.requeue(q, msg)
			}
		case <-ctx.Done():
			b.awaitSettlement(q, msg, settled)
			return
		case <-b.done:
			b.awaitSettlement(q, msg, settled)
			return
		}
	}
}

// awaitSettlement gives the handler holding msg until the settle timeout to
// ack it. Anything else puts msg back on the queue.
func (b *Broker) awaitSettlement(q *queue, msg broker.Message, settled <-chan bool) {
	timer := time.NewTimer(b.settleTimeout)
	defer timer.Stop()
	select {
	case acked := <-settled:
		if acked {
			return
		}
	case <-timer.C:
	}
	b.requeue(q, msg)
}

// next blocks until a message is available or the subscription ends.
func (b *Broker) next(ctx context.Context, q *queue) (broker.Message, bool) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return broker.Message{}, false
		}
		if len(q.pending) > 0 {
			msg := q.pending[0]
			q.pending = q.pending[1:]
			b.mu.Unlock()
			return msg, true
		}
		wake := q.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return broker.Message{}, false
		case <-b.done:
			return broker.Message{}, false
		}
	}
}

func (b *Broker) requeue(q *queue, msg broker.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q.pending = append([]broker.Message{msg}, q.pending...)
	q.signal()
}

// signal wakes every subscriber waiting on the queue. Caller holds b.mu.
func (q *queue) signal() {
	close(q.wake)
	q.wake = make(chan struct{})
}
