package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"overflow/internal/platform/middleware"
	"overflow/internal/tags/models"
	"overflow/pkg/platform/httputil"
	"overflow/pkg/requestcontext"
)

// Service defines the interface for tag operations.
type Service interface {
	ListTags(ctx context.Context) ([]*models.Tag, error)
	CreateTag(ctx context.Context, req *models.CreateTagRequest) (*models.Tag, error)
}

// Handler serves the tag endpoints.
type Handler struct {
	svc          Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(svc Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{svc: svc, logger: logger, jwtValidator: jwtValidator}
}

// Register mounts GET /tags (public) and POST /tags (authenticated).
func (h *Handler) Register(r chi.Router) {
	r.Get("/tags", h.handleList)
	r.With(middleware.RequireAuth(h.jwtValidator, h.logger)).Post("/tags", h.handleCreate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.ListTags(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list tags",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}
	httputil.WriteJSON(w, http.StatusOK, tags)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateTagRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	tag, err := h.svc.CreateTag(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create tag",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Location", "/tags/"+tag.Slug)
	httputil.WriteJSON(w, http.StatusCreated, tag)
}
