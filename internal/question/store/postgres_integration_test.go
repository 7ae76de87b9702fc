//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"overflow/internal/outbox/store/postgres"
	"overflow/internal/question/models"
	"overflow/internal/question/store"
	"overflow/pkg/events"
	"overflow/pkg/platform/sentinel"
	"overflow/pkg/platform/tx"
	"overflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	outbox   *postgres.Store
	runner   *tx.SQLRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.outbox = postgres.New(s.postgres.DB)
	s.runner = tx.NewSQLRunner(s.postgres.DB, 5*time.Second)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "answers", "questions", "outbox")
	s.Require().NoError(err)
}

func newQuestion(title string, tags ...string) *models.Question {
	return &models.Question{
		ID:               uuid.NewString(),
		Title:            title,
		Content:          "content for " + title,
		AskerID:          "u-1",
		AskerDisplayName: "Ada",
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
		TagSlugs:         tags,
	}
}

func newAnswer(questionID string) *models.Answer {
	return &models.Answer{
		ID:              uuid.NewString(),
		QuestionID:      questionID,
		Content:         "an answer",
		UserID:          "u-2",
		UserDisplayName: "Grace",
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}

// =============================================================================
// Questions
// =============================================================================

func (s *PostgresStoreSuite) TestCreateFindAndListByTag() {
	ctx := context.Background()
	goQ := newQuestion("channels", "go")
	rustQ := newQuestion("lifetimes", "rust")
	s.Require().NoError(s.store.CreateQuestion(ctx, goQ))
	s.Require().NoError(s.store.CreateQuestion(ctx, rustQ))

	found, err := s.store.FindQuestion(ctx, goQ.ID)
	s.Require().NoError(err)
	s.Equal(goQ.Title, found.Title)
	s.Equal([]string{"go"}, found.TagSlugs)
	s.True(goQ.CreatedAt.Equal(found.CreatedAt))

	all, err := s.store.ListQuestions(ctx, "")
	s.Require().NoError(err)
	s.Len(all, 2)

	tagged, err := s.store.ListQuestions(ctx, "rust")
	s.Require().NoError(err)
	s.Require().Len(tagged, 1)
	s.Equal(rustQ.ID, tagged[0].ID)
}

func (s *PostgresStoreSuite) TestMissingQuestion() {
	ctx := context.Background()
	_, err := s.store.FindQuestion(ctx, uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.IncrementViewCount(ctx, uuid.NewString()), sentinel.ErrNotFound)
	s.ErrorIs(s.store.DeleteQuestion(ctx, uuid.NewString()), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDeleteCascadesToAnswers() {
	ctx := context.Background()
	q := newQuestion("cascade")
	s.Require().NoError(s.store.CreateQuestion(ctx, q))
	a := newAnswer(q.ID)
	s.Require().NoError(s.store.CreateAnswer(ctx, a))

	s.Require().NoError(s.store.DeleteQuestion(ctx, q.ID))
	_, err := s.store.FindAnswer(ctx, a.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// =============================================================================
// Answers
// =============================================================================

func (s *PostgresStoreSuite) TestAnswerCountAndAcceptance() {
	ctx := context.Background()
	q := newQuestion("accept")
	s.Require().NoError(s.store.CreateQuestion(ctx, q))
	a := newAnswer(q.ID)
	s.Require().NoError(s.store.CreateAnswer(ctx, a))

	count, err := s.store.AdjustAnswerCount(ctx, q.ID, 1)
	s.Require().NoError(err)
	s.Equal(1, count)

	s.Require().NoError(s.store.AcceptAnswer(ctx, q.ID, a.ID))
	s.ErrorIs(s.store.AcceptAnswer(ctx, q.ID, a.ID), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.DeleteAnswer(ctx, a.ID), sentinel.ErrInvalidState)

	answers, err := s.store.ListAnswers(ctx, q.ID)
	s.Require().NoError(err)
	s.Require().Len(answers, 1)
	s.True(answers[0].Accepted)

	_, err = s.store.AdjustAnswerCount(ctx, uuid.NewString(), 1)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// =============================================================================
// Unit of work
// =============================================================================

func (s *PostgresStoreSuite) TestRollbackDiscardsMutationAndEvent() {
	ctx := context.Background()
	q := newQuestion("rolled back")
	boom := errors.New("boom")

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateQuestion(ctx, q); err != nil {
			return err
		}
		env, err := events.New(q.ID, events.QuestionCreated{Title: q.Title}, q.CreatedAt)
		if err != nil {
			return err
		}
		if err := s.outbox.Append(ctx, env); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindQuestion(ctx, q.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	pending, err := s.outbox.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}

func (s *PostgresStoreSuite) TestCommitKeepsMutationAndEvent() {
	ctx := context.Background()
	q := newQuestion("committed")

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateQuestion(ctx, q); err != nil {
			return err
		}
		env, err := events.New(q.ID, events.QuestionCreated{Title: q.Title}, q.CreatedAt)
		if err != nil {
			return err
		}
		return s.outbox.Append(ctx, env)
	})
	s.Require().NoError(err)

	_, err = s.store.FindQuestion(ctx, q.ID)
	s.NoError(err)
	pending, err := s.outbox.Pending(ctx)
	s.Require().NoError(err)
	s.Equal(1, pending)
}
