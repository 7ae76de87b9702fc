package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"overflow/pkg/events"
	"overflow/pkg/platform/broker"
	"overflow/pkg/platform/circuit"
)

// ErrBreakerOpen is returned by DrainOnce while the broker is considered down.
var ErrBreakerOpen = errors.New("outbox relay circuit open")

const (
	defaultBatchSize    = 100
	defaultPollInterval = 500 * time.Millisecond
)

// Relay drains the outbox into the broker.
type Relay struct {
	store     Store
	publisher broker.Publisher
	exchange  string
	logger    *slog.Logger
	metrics   *Metrics
	breaker   *circuit.Breaker
	tracer    trace.Tracer

	batchSize    int
	pollInterval time.Duration
}

// Option configures the Relay.
type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		r.breaker = b
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithExchange overrides the exchange entries are published to.
func WithExchange(exchange string) Option {
	return func(r *Relay) {
		r.exchange = exchange
	}
}

func NewRelay(store Store, publisher broker.Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:        store,
		publisher:    publisher,
		exchange:     events.Exchange,
		logger:       slog.Default(),
		breaker:      circuit.New("outbox-relay"),
		tracer:       otel.Tracer("overflow/outbox"),
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox every poll interval until ctx is cancelled. A full
// batch triggers an immediate follow-up drain.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "outbox relay started",
		"batch_size", r.batchSize,
		"poll_interval", r.pollInterval,
	)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		n, err := r.DrainOnce(ctx)
		if err != nil && !errors.Is(err, ErrBreakerOpen) && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox drain failed",
				"published", n,
				"error", err,
			)
		}
		if err == nil && n == r.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// DrainOnce publishes at most one batch and returns the number of entries
// published.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		r.metrics.incBreakerSkipped()
		return 0, ErrBreakerOpen
	}

	start := time.Now()
	n, err := r.store.Drain(ctx, r.batchSize, r.publish)
	r.metrics.observeDrain(time.Since(start).Seconds())
	return n, err
}

func (r *Relay) publish(ctx context.Context, entry Entry) error {
	env := entry.Envelope()
	ctx, span := r.tracer.Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("event.kind", string(env.Kind)),
			attribute.String("question.id", env.QuestionID),
			attribute.Int64("event.sequence", env.Sequence),
		),
	)
	defer span.End()

	body, err := events.Encode(env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return err
	}

	headers := map[string]string{
		broker.HeaderKind:    string(env.Kind),
		broker.HeaderEventID: env.ID.String(),
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	err = r.publisher.Publish(ctx, r.exchange, broker.Message{
		Key:     env.QuestionID,
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish")
		r.metrics.incPublishErrors()
		if _, change := r.breaker.RecordFailure(); change.Opened {
			r.metrics.setBreakerState(true)
			r.logger.ErrorContext(ctx, "outbox relay circuit opened",
				"error", err,
			)
		}
		return fmt.Errorf("publish outbox entry %d: %w", entry.ID, err)
	}

	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.metrics.setBreakerState(false)
		r.logger.InfoContext(ctx, "outbox relay circuit closed")
	}
	r.metrics.incPublished(string(env.Kind))
	r.logger.DebugContext(ctx, "outbox entry published",
		"question_id", env.QuestionID,
		"kind", env.Kind,
		"sequence", env.Sequence,
	)
	return nil
}
