//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"overflow/internal/tags/models"
	"overflow/internal/tags/store"
	"overflow/pkg/platform/sentinel"
	"overflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
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
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "tags"))
}

func newTag(slug, name string) *models.Tag {
	return &models.Tag{
		ID:        uuid.New(),
		Slug:      slug,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *PostgresStoreSuite) TestCreateListAndSlugs() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTag("rust", "Rust")))
	s.Require().NoError(s.store.Create(ctx, newTag("go", "Go")))

	tags, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(tags, 2)
	s.Equal("Go", tags[0].Name)

	slugs, err := s.store.ListSlugs(ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"go", "rust"}, slugs)
}

func (s *PostgresStoreSuite) TestDuplicateSlugIsConflict() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTag("go", "Go")))
	err := s.store.Create(ctx, newTag("GO", "Golang"))
	s.ErrorIs(err, sentinel.ErrConflict)
}
