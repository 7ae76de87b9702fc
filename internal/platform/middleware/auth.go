package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"overflow/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID      string
	DisplayName string
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity on the request context. A token missing the subject or
// name claim is a bad request rather than an authentication failure.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeRaw(w, logger, r, http.StatusUnauthorized,
					`{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeRaw(w, logger, r, http.StatusUnauthorized,
					`{"error":"unauthorized","error_description":"Invalid or expired token"}`)
				return
			}

			identity := requestcontext.Identity{ID: claims.UserID, DisplayName: claims.DisplayName}
			if !identity.Complete() {
				logger.InfoContext(ctx, "token missing identity claims",
					"request_id", requestID,
				)
				writeRaw(w, logger, r, http.StatusBadRequest,
					`{"error":"bad_request","error_description":"Token is missing identity claims"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithUser(ctx, identity)))
		})
	}
}

func writeRaw(w http.ResponseWriter, logger *slog.Logger, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write error response",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
}
