package testutil

import (
	"net/http"

	"overflow/pkg/requestcontext"
)

// WithUser adds a caller identity to the request context, as the auth
// middleware would for an authenticated request.
func WithUser(req *http.Request, userID, displayName string) *http.Request {
	ctx := requestcontext.WithUser(req.Context(), requestcontext.Identity{ID: userID, DisplayName: displayName})
	return req.WithContext(ctx)
}

// WithRequestID adds a request id to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
