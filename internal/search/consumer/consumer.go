// Package consumer applies question events from the broker to the search
// projection.
//
// Failure policy: an undecodable message is dead-lettered at once. Any
// other handler failure is retried in process with exponential backoff,
// each attempt bounded by the handler timeout; once attempts are exhausted
// the message is dead-lettered and acked. A message whose dead-lettering
// fails, or that is interrupted by shutdown, is nacked for redelivery.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"overflow/internal/search/metrics"
	"overflow/pkg/events"
	"overflow/pkg/platform/broker"
)

const (
	// Queue receives every question event for the search projection.
	Queue = "questions.search"
	// DeadLetterQueue holds messages the projection gave up on. It is also
	// the exchange they are published to.
	DeadLetterQueue = "questions.search.dlq"

	defaultWorkers        = 4
	defaultMaxAttempts    = 5
	defaultHandlerTimeout = 10 * time.Second
	resubscribeDelay      = 250 * time.Millisecond
	settleTimeout         = 5 * time.Second
)

// ErrMalformed marks an envelope the consumer cannot interpret.
var ErrMalformed = errors.New("malformed message")

// Handler applies one decoded event.
type Handler interface {
	Handle(ctx context.Context, env events.Envelope, payload events.Payload) error
}

// Consumer pulls deliveries from the search queue with a fixed number of
// workers, each holding its own subscription.
type Consumer struct {
	broker  broker.Broker
	handler Handler
	kinds   []events.Kind

	workers        int
	maxAttempts    int
	handlerTimeout time.Duration
	newBackOff     func() backoff.BackOff

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Consumer)

func WithWorkers(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.handlerTimeout = d
		}
	}
}

// WithBackOff sets the retry schedule between attempts. The factory is
// called once per message.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(c *Consumer) {
		c.newBackOff = factory
	}
}

// WithKinds restricts the queue binding. The default binds every kind.
func WithKinds(kinds []events.Kind) Option {
	return func(c *Consumer) {
		c.kinds = kinds
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

func New(b broker.Broker, handler Handler, opts ...Option) *Consumer {
	c := &Consumer{
		broker:         b,
		handler:        handler,
		kinds:          events.AllKinds(),
		workers:        defaultWorkers,
		maxAttempts:    defaultMaxAttempts,
		handlerTimeout: defaultHandlerTimeout,
		newBackOff:     defaultBackOff,
		logger:         slog.Default(),
		tracer:         otel.Tracer("overflow/search/consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Declare provisions the search queue and its dead-letter queue.
func (c *Consumer) Declare(ctx context.Context) error {
	kinds := make([]string, len(c.kinds))
	for i, k := range c.kinds {
		kinds[i] = k.String()
	}
	if err := c.broker.Declare(ctx, Queue, broker.Binding{Exchange: events.Exchange, Kinds: kinds}); err != nil {
		return fmt.Errorf("declare %s: %w", Queue, err)
	}
	if err := c.broker.Declare(ctx, DeadLetterQueue, broker.Binding{Exchange: DeadLetterQueue}); err != nil {
		return fmt.Errorf("declare %s: %w", DeadLetterQueue, err)
	}
	return nil
}

// Run consumes until ctx is cancelled. A worker whose subscription ends
// resubscribes, which is how nacked messages come back.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "search consumer started",
		"queue", Queue,
		"workers", c.workers,
		"max_attempts", c.maxAttempts,
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		worker := i
		g.Go(func() error {
			return c.work(ctx, worker)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	c.logger.Info("search consumer stopped")
	return err
}

func (c *Consumer) work(ctx context.Context, worker int) error {
	for {
		deliveries, err := c.broker.Subscribe(ctx, Queue)
		if err != nil {
			if errors.Is(err, broker.ErrClosed) {
				return nil
			}
			return fmt.Errorf("subscribe %s: %w", Queue, err)
		}
		for d := range deliveries {
			c.process(ctx, d)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
			c.logger.DebugContext(ctx, "resubscribing", "worker", worker)
		}
	}
}

// process settles exactly one delivery.
func (c *Consumer) process(ctx context.Context, d *broker.Delivery) {
	start := time.Now()
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(d.Headers))

	env, payload, err := decode(d.Body)
	if err != nil {
		c.logger.WarnContext(ctx, "undecodable message, dead-lettering",
			"kind", d.Header(broker.HeaderKind),
			"event_id", d.Header(broker.HeaderEventID),
			"error", err,
		)
		c.deadLetter(ctx, d, err, 1, "malformed")
		c.metrics.ObserveEvent(d.Header(broker.HeaderKind), "malformed", start)
		return
	}

	ctx, span := c.tracer.Start(ctx, "search.apply",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.kind", env.Kind.String()),
			attribute.String("question.id", env.QuestionID),
			attribute.Int64("event.sequence", env.Sequence),
		),
	)
	defer span.End()

	attempts, err := c.apply(ctx, env, payload)
	switch {
	case err == nil:
		c.ack(ctx, d)
		c.metrics.ObserveEvent(env.Kind.String(), "applied", start)
	case ctx.Err() != nil:
		c.nack(ctx, d)
		c.metrics.ObserveEvent(env.Kind.String(), "interrupted", start)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply")
		c.logger.ErrorContext(ctx, "giving up on event, dead-lettering",
			"kind", env.Kind,
			"question_id", env.QuestionID,
			"attempts", attempts,
			"error", err,
		)
		c.deadLetter(ctx, d, err, attempts, "exhausted")
		c.metrics.ObserveEvent(env.Kind.String(), "dead_lettered", start)
	}
}

func (c *Consumer) apply(ctx context.Context, env events.Envelope, payload events.Payload) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
		defer cancel()
		err := c.handler.Handle(hctx, env, payload)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.IncRetries()
		c.logger.WarnContext(ctx, "event handler failed, retrying",
			"kind", env.Kind,
			"question_id", env.QuestionID,
			"attempt", attempts,
			"retry_in", wait,
			"error", err,
		)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), ctx)
	return attempts, backoff.RetryNotify(op, policy, notify)
}

func decode(body []byte) (events.Envelope, events.Payload, error) {
	env, err := events.Decode(body)
	if err != nil {
		return events.Envelope{}, nil, err
	}
	if env.Sequence < 1 {
		return events.Envelope{}, nil, fmt.Errorf("%w: missing sequence", ErrMalformed)
	}
	payload, err := env.DecodePayload()
	if err != nil {
		return events.Envelope{}, nil, err
	}
	return env, payload, nil
}

// deadLetter publishes the original message with failure headers, then acks.
func (c *Consumer) deadLetter(ctx context.Context, d *broker.Delivery, cause error, attempts int, reason string) {
	msg := d.Message.Clone()
	msg.Headers[broker.HeaderError] = cause.Error()
	msg.Headers[broker.HeaderAttempts] = strconv.Itoa(attempts)
	msg.Headers[broker.HeaderOriginalQueue] = d.Queue

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := c.broker.Publish(pctx, DeadLetterQueue, msg); err != nil {
		c.logger.ErrorContext(ctx, "dead-letter publish failed, leaving message for redelivery",
			"event_id", d.Header(broker.HeaderEventID),
			"error", err,
		)
		c.nack(ctx, d)
		return
	}
	c.metrics.IncDeadLettered(reason)
	c.ack(ctx, d)
}

func (c *Consumer) ack(ctx context.Context, d *broker.Delivery) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := d.Ack(sctx); err != nil {
		c.logger.WarnContext(ctx, "ack failed", "event_id", d.Header(broker.HeaderEventID), "error", err)
	}
}

func (c *Consumer) nack(ctx context.Context, d *broker.Delivery) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := d.Nack(sctx); err != nil {
		c.logger.WarnContext(ctx, "nack failed", "event_id", d.Header(broker.HeaderEventID), "error", err)
	}
}
