// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	user := requestcontext.User(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithUser(ctx, requestcontext.Identity{ID: "u-1", DisplayName: "Ada"})
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	userKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyUser        = userKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Identity is the caller as asserted by the bearer token claims.
type Identity struct {
	ID          string
	DisplayName string
}

// Complete reports whether both claims are present.
func (i Identity) Complete() bool {
	return i.ID != "" && i.DisplayName != ""
}

// -----------------------------------------------------------------------------
// Caller identity
// -----------------------------------------------------------------------------

// User retrieves the caller identity. Returns the zero value if not set.
func User(ctx context.Context) Identity {
	if u, ok := ctx.Value(ContextKeyUser).(Identity); ok {
		return u
	}
	return Identity{}
}

// WithUser injects the caller identity into the context.
func WithUser(ctx context.Context, user Identity) context.Context {
	return context.WithValue(ctx, ContextKeyUser, user)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
