package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"overflow/internal/platform/middleware"
	"overflow/internal/question/models"
	"overflow/pkg/platform/httputil"
	"overflow/pkg/requestcontext"
)

// Service defines the interface for question and answer operations.
type Service interface {
	CreateQuestion(ctx context.Context, req *models.CreateQuestionRequest) (*models.Question, error)
	ListQuestions(ctx context.Context, tag string) ([]*models.Question, error)
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	UpdateQuestion(ctx context.Context, id string, req *models.CreateQuestionRequest) error
	DeleteQuestion(ctx context.Context, id string) error
	PostAnswer(ctx context.Context, questionID string, req *models.CreateAnswerRequest) (*models.Answer, error)
	UpdateAnswer(ctx context.Context, questionID, answerID string, req *models.CreateAnswerRequest) error
	DeleteAnswer(ctx context.Context, questionID, answerID string) error
	AcceptAnswer(ctx context.Context, questionID, answerID string) error
}

// Handler serves the question endpoints.
type Handler struct {
	svc          Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(svc Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{svc: svc, logger: logger, jwtValidator: jwtValidator}
}

// Register mounts the question routes. Reads are public; every mutation
// requires a bearer token.
func (h *Handler) Register(r chi.Router) {
	r.Route("/questions", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/", h.handleCreate)
			r.Put("/{id}", h.handleUpdate)
			r.Delete("/{id}", h.handleDelete)
			r.Post("/{id}/answers", h.handlePostAnswer)
			r.Put("/{id}/answers/{answerID}", h.handleUpdateAnswer)
			r.Delete("/{id}/answers/{answerID}", h.handleDeleteAnswer)
			r.Post("/{id}/answers/{answerID}/accept", h.handleAcceptAnswer)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateQuestionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	q, err := h.svc.CreateQuestion(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to create question", err)
		return
	}
	w.Header().Set("Location", "/questions/"+q.ID)
	httputil.WriteJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	questions, err := h.svc.ListQuestions(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		h.fail(r.Context(), w, "failed to list questions", err)
		return
	}
	if questions == nil {
		questions = []*models.Question{}
	}
	httputil.WriteJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.GetQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(r.Context(), w, "failed to get question", err)
		return
	}
	if q.Answers == nil {
		q.Answers = []*models.Answer{}
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateQuestionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.svc.UpdateQuestion(ctx, chi.URLParam(r, "id"), req); err != nil {
		h.fail(ctx, w, "failed to update question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteQuestion(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(r.Context(), w, "failed to delete question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePostAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	questionID := chi.URLParam(r, "id")

	req, ok := httputil.DecodeAndPrepare[models.CreateAnswerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, err := h.svc.PostAnswer(ctx, questionID, req)
	if err != nil {
		h.fail(ctx, w, "failed to post answer", err)
		return
	}
	w.Header().Set("Location", "/questions/"+questionID+"/answers/"+a.ID)
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateAnswerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	err := h.svc.UpdateAnswer(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "answerID"), req)
	if err != nil {
		h.fail(ctx, w, "failed to update answer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteAnswer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "answerID"))
	if err != nil {
		h.fail(r.Context(), w, "failed to delete answer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAcceptAnswer(w http.ResponseWriter, r *http.Request) {
	err := h.svc.AcceptAnswer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "answerID"))
	if err != nil {
		h.fail(r.Context(), w, "failed to accept answer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
