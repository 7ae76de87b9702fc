package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"overflow/internal/search/index"
	"overflow/internal/search/metrics"
	dErrors "overflow/pkg/domain-errors"
	"overflow/pkg/platform/httputil"
	"overflow/pkg/platform/sentinel"
	"overflow/pkg/requestcontext"
)

// Searcher is the read interface of the search index.
type Searcher interface {
	Search(ctx context.Context, q index.Query) ([]index.Document, error)
	Get(ctx context.Context, id string) (index.Document, error)
}

// Handler serves the search endpoints.
type Handler struct {
	searcher Searcher
	limit    int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(searcher Searcher, limit int, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{searcher: searcher, limit: limit, logger: logger, metrics: m}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/search", h.handleSearch)
	r.Get("/search/questions/{id}", h.handleGet)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values := r.URL.Query()
	if !values.Has("query") {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "query parameter is required"))
		return
	}

	q := ParseQuery(values.Get("query"))
	start := time.Now()
	docs, err := h.searcher.Search(ctx, index.Query{Text: q.Text, Tag: q.Tag, Limit: h.limit})
	h.metrics.ObserveSearch(start, err)
	if err != nil {
		h.logger.ErrorContext(ctx, "search failed",
			"request_id", requestcontext.RequestID(ctx),
			"text", q.Text,
			"filter", q.Filter(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "search failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.searcher.Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, sentinel.ErrNotFound) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "question not found"))
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "search lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "lookup failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}
