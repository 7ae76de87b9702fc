// Package service implements the question write operations. Every mutation
// runs in one unit of work that also appends exactly one event to the outbox,
// so an event exists if and only if its mutation committed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"overflow/internal/question/metrics"
	"overflow/internal/question/models"
	dErrors "overflow/pkg/domain-errors"
	"overflow/pkg/events"
	"overflow/pkg/platform/sentinel"
	str "overflow/pkg/platform/strings"
	"overflow/pkg/platform/tx"
	"overflow/pkg/requestcontext"
)

// Store persists questions and answers, joining the unit of work in ctx.
type Store interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
	ListQuestions(ctx context.Context, tag string) ([]*models.Question, error)
	FindQuestion(ctx context.Context, id string) (*models.Question, error)
	IncrementViewCount(ctx context.Context, id string) error
	UpdateQuestion(ctx context.Context, q *models.Question) error
	DeleteQuestion(ctx context.Context, id string) error

	ListAnswers(ctx context.Context, questionID string) ([]*models.Answer, error)
	CreateAnswer(ctx context.Context, a *models.Answer) error
	FindAnswer(ctx context.Context, id string) (*models.Answer, error)
	UpdateAnswer(ctx context.Context, a *models.Answer) error
	DeleteAnswer(ctx context.Context, id string) error
	AdjustAnswerCount(ctx context.Context, questionID string, delta int) (int, error)
	AcceptAnswer(ctx context.Context, questionID, answerID string) error
}

type Service struct {
	store   Store
	tags    TagValidator
	outbox  Outbox
	tx      tx.Runner
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, tags TagValidator, outbox Outbox, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tags:   tags,
		outbox: outbox,
		tx:     runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Questions
// =============================================================================

func (s *Service) CreateQuestion(ctx context.Context, req *models.CreateQuestionRequest) (q *models.Question, err error) {
	defer s.observe("create_question", time.Now(), &err)

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkTags(ctx, req.Tags); err != nil {
		return nil, err
	}

	q = &models.Question{
		ID:               uuid.NewString(),
		Title:            req.Title,
		Content:          req.Content,
		AskerID:          user.ID,
		AskerDisplayName: user.DisplayName,
		CreatedAt:        requestcontext.Now(ctx).UTC(),
		TagSlugs:         req.Tags,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateQuestion(ctx, q); err != nil {
			return err
		}
		return s.emit(ctx, q.ID, events.QuestionCreated{
			Title:     q.Title,
			Content:   q.Content,
			CreatedAt: q.CreatedAt,
			Tags:      q.TagSlugs,
		})
	})
	if err != nil {
		return nil, s.translate(ctx, "create question", err)
	}

	s.logger.InfoContext(ctx, "question created",
		"question_id", q.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return q, nil
}

// ListQuestions returns questions newest first, optionally restricted to tag.
func (s *Service) ListQuestions(ctx context.Context, tag string) ([]*models.Question, error) {
	questions, err := s.store.ListQuestions(ctx, str.NormalizeTag(tag))
	if err != nil {
		return nil, s.translate(ctx, "list questions", err)
	}
	return questions, nil
}

// GetQuestion returns the question with its answers and counts the view.
func (s *Service) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "question not found")
	}

	var q *models.Question
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.IncrementViewCount(ctx, id); err != nil {
			return err
		}
		found, err := s.store.FindQuestion(ctx, id)
		if err != nil {
			return err
		}
		answers, err := s.store.ListAnswers(ctx, id)
		if err != nil {
			return err
		}
		found.Answers = answers
		q = found
		return nil
	})
	if err != nil {
		return nil, s.translate(ctx, "get question", err)
	}
	return q, nil
}

// UpdateQuestion replaces the editable fields. Only the asker may edit.
func (s *Service) UpdateQuestion(ctx context.Context, id string, req *models.CreateQuestionRequest) (err error) {
	defer s.observe("update_question", time.Now(), &err)

	user, err := requireUser(ctx)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q, err := s.findOwnedQuestion(ctx, id, user.ID)
		if err != nil {
			return err
		}
		if err := s.checkTags(ctx, req.Tags); err != nil {
			return err
		}

		now := requestcontext.Now(ctx).UTC()
		q.Title = req.Title
		q.Content = req.Content
		q.TagSlugs = req.Tags
		q.UpdatedAt = &now
		if err := s.store.UpdateQuestion(ctx, q); err != nil {
			return err
		}
		return s.emit(ctx, q.ID, events.QuestionUpdated{
			Title:   q.Title,
			Content: q.Content,
			Tags:    q.TagSlugs,
		})
	})
	return s.translate(ctx, "update question", err)
}

// DeleteQuestion removes the question and its answers. Only the asker may delete.
func (s *Service) DeleteQuestion(ctx context.Context, id string) (err error) {
	defer s.observe("delete_question", time.Now(), &err)

	user, err := requireUser(ctx)
	if err != nil {
		return err
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.findOwnedQuestion(ctx, id, user.ID); err != nil {
			return err
		}
		if err := s.store.DeleteQuestion(ctx, id); err != nil {
			return err
		}
		return s.emit(ctx, id, events.QuestionDeleted{})
	})
	if err == nil {
		s.logger.InfoContext(ctx, "question deleted",
			"question_id", id,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return s.translate(ctx, "delete question", err)
}

// =============================================================================
// Answers
// =============================================================================

// PostAnswer adds an answer and bumps the question's answer count.
func (s *Service) PostAnswer(ctx context.Context, questionID string, req *models.CreateAnswerRequest) (a *models.Answer, err error) {
	defer s.observe("post_answer", time.Now(), &err)

	user, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := uuid.Validate(questionID); err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "question not found")
	}

	a = &models.Answer{
		ID:              uuid.NewString(),
		QuestionID:      questionID,
		Content:         req.Content,
		UserID:          user.ID,
		UserDisplayName: user.DisplayName,
		CreatedAt:       requestcontext.Now(ctx).UTC(),
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.FindQuestion(ctx, questionID); err != nil {
			return err
		}
		if err := s.store.CreateAnswer(ctx, a); err != nil {
			return err
		}
		count, err := s.store.AdjustAnswerCount(ctx, questionID, 1)
		if err != nil {
			return err
		}
		return s.emit(ctx, questionID, events.AnswerCountChanged{NewCount: count})
	})
	if err != nil {
		return nil, s.translate(ctx, "post answer", err)
	}
	return a, nil
}

// UpdateAnswer edits the answer body. Only the author may edit.
func (s *Service) UpdateAnswer(ctx context.Context, questionID, answerID string, req *models.CreateAnswerRequest) (err error) {
	defer s.observe("update_answer", time.Now(), &err)

	user, err := requireUser(ctx)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		a, err := s.findAnswerOf(ctx, questionID, answerID)
		if err != nil {
			return err
		}
		if a.QuestionID != questionID {
			return dErrors.New(dErrors.CodeBadRequest, "cannot update answer details")
		}
		if a.UserID != user.ID {
			return dErrors.New(dErrors.CodeForbidden, "only the author can edit this answer")
		}
		now := requestcontext.Now(ctx).UTC()
		a.Content = req.Content
		a.UpdatedAt = &now
		return s.store.UpdateAnswer(ctx, a)
	})
	return s.translate(ctx, "update answer", err)
}

// DeleteAnswer removes an unaccepted answer and decrements the count.
// Only the author may delete.
func (s *Service) DeleteAnswer(ctx context.Context, questionID, answerID string) (err error) {
	defer s.observe("delete_answer", time.Now(), &err)

	user, err := requireUser(ctx)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.findQuestion(ctx, questionID); err != nil {
			return err
		}
		a, err := s.findAnswerOf(ctx, questionID, answerID)
		if err != nil {
			return err
		}
		if a.QuestionID != questionID || a.Accepted {
			return dErrors.New(dErrors.CodeBadRequest, "cannot delete this answer")
		}
		if a.UserID != user.ID {
			return dErrors.New(dErrors.CodeForbidden, "only the author can delete this answer")
		}
		if err := s.store.DeleteAnswer(ctx, answerID); err != nil {
			return err
		}
		count, err := s.store.AdjustAnswerCount(ctx, questionID, -1)
		if err != nil {
			return err
		}
		return s.emit(ctx, questionID, events.AnswerCountChanged{NewCount: count})
	})
	return s.translate(ctx, "delete answer", err)
}

// AcceptAnswer marks an answer accepted. Only the asker may accept, and only once.
func (s *Service) AcceptAnswer(ctx context.Context, questionID, answerID string) (err error) {
	defer s.observe("accept_answer", time.Now(), &err)

	user, err := requireUser(ctx)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q, err := s.findQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		a, err := s.findAnswerOf(ctx, questionID, answerID)
		if err != nil {
			return err
		}
		if !q.IsAskedBy(user.ID) {
			return dErrors.New(dErrors.CodeForbidden, "only the asker can accept an answer")
		}
		if a.QuestionID != questionID || q.HasAcceptedAnswer {
			return dErrors.New(dErrors.CodeBadRequest, "cannot accept answer")
		}
		if err := s.store.AcceptAnswer(ctx, questionID, answerID); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeBadRequest, "cannot accept answer")
			}
			return err
		}
		return s.emit(ctx, questionID, events.AnswerAccepted{})
	})
	return s.translate(ctx, "accept answer", err)
}

// =============================================================================
// Helpers
// =============================================================================

func requireUser(ctx context.Context) (requestcontext.Identity, error) {
	user := requestcontext.User(ctx)
	if !user.Complete() {
		return user, dErrors.New(dErrors.CodeBadRequest, "can not get user details")
	}
	return user, nil
}

// checkTags rejects unknown slugs. A tag set that cannot be loaded is an
// availability problem, not a client error.
func (s *Service) checkTags(ctx context.Context, slugs []string) error {
	ok, err := s.tags.IsValidSet(ctx, slugs)
	if err != nil {
		s.logger.ErrorContext(ctx, "tag validation unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "tag validation is temporarily unavailable")
	}
	if !ok {
		s.metrics.IncTagRejections()
		return dErrors.New(dErrors.CodeBadRequest, "invalid tags")
	}
	return nil
}

func (s *Service) findQuestion(ctx context.Context, id string) (*models.Question, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, sentinel.ErrNotFound
	}
	return s.store.FindQuestion(ctx, id)
}

func (s *Service) findOwnedQuestion(ctx context.Context, id, userID string) (*models.Question, error) {
	q, err := s.findQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if !q.IsAskedBy(userID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the asker can modify this question")
	}
	return q, nil
}

func (s *Service) findAnswerOf(ctx context.Context, questionID, answerID string) (*models.Answer, error) {
	if err := uuid.Validate(answerID); err != nil {
		return nil, sentinel.ErrNotFound
	}
	return s.store.FindAnswer(ctx, answerID)
}

func (s *Service) emit(ctx context.Context, questionID string, payload events.Payload) error {
	env, err := events.New(questionID, payload, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, env)
}

// translate maps store sentinels to domain errors and hides everything else
// behind an internal error. Domain errors pass through.
func (s *Service) translate(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeBadRequest, "invalid state for "+op)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out")
	}
	s.logger.ErrorContext(ctx, "question operation failed",
		"operation", op,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
}

func (s *Service) observe(op string, start time.Time, err *error) {
	s.metrics.Observe(op, start, *err)
}
