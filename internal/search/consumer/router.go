package consumer

import (
	"context"
	"log/slog"

	"overflow/pkg/events"
)

// KindHandler applies one kind of event.
type KindHandler interface {
	Handle(ctx context.Context, env events.Envelope, payload events.Payload) error
}

// KindHandlerFunc adapts a function to KindHandler.
type KindHandlerFunc func(ctx context.Context, env events.Envelope, payload events.Payload) error

func (f KindHandlerFunc) Handle(ctx context.Context, env events.Envelope, payload events.Payload) error {
	return f(ctx, env, payload)
}

// Router dispatches envelopes to kind-specific handlers.
type Router struct {
	handlers map[events.Kind]KindHandler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[events.Kind]KindHandler),
		logger:   logger,
	}
}

// Register adds a handler for a kind, replacing any previous one.
func (r *Router) Register(kind events.Kind, handler KindHandler) {
	r.handlers[kind] = handler
}

// Kinds lists the registered kinds, used to bind the queue.
func (r *Router) Kinds() []events.Kind {
	out := make([]events.Kind, 0, len(r.handlers))
	for _, k := range events.AllKinds() {
		if _, ok := r.handlers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Handle routes the envelope. Kinds without a handler are skipped so the
// message is acked rather than redelivered forever.
func (r *Router) Handle(ctx context.Context, env events.Envelope, payload events.Payload) error {
	handler, ok := r.handlers[env.Kind]
	if !ok {
		r.logger.WarnContext(ctx, "no handler for event kind, skipping",
			"kind", env.Kind,
			"question_id", env.QuestionID,
		)
		return nil
	}
	return handler.Handle(ctx, env, payload)
}
