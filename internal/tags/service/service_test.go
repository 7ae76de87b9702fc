package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overflow/internal/platform/logger"
	"overflow/internal/tags"
	"overflow/internal/tags/models"
	"overflow/internal/tags/store"
	dErrors "overflow/pkg/domain-errors"
)

type recordingAnnouncer struct {
	slugs []string
	err   error
}

func (a *recordingAnnouncer) Publish(_ context.Context, slug string) error {
	a.slugs = append(a.slugs, slug)
	return a.err
}

func TestCreateTag_BecomesValidImmediately(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	cache := tags.NewCache(st, tags.WithLogger(logger.Discard()))
	announcer := &recordingAnnouncer{}
	svc := New(st, cache, WithAnnouncer(announcer), WithLogger(logger.Discard()))

	ok, err := cache.IsValidSet(ctx, []string{"go"})
	require.NoError(t, err)
	assert.False(t, ok)

	tag, err := svc.CreateTag(ctx, &models.CreateTagRequest{Slug: " Go ", Name: "Go"})
	require.NoError(t, err)
	assert.Equal(t, "go", tag.Slug)
	assert.Equal(t, []string{"go"}, announcer.slugs)

	ok, err = cache.IsValidSet(ctx, []string{"go"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateTag_Errors(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	svc := New(st, tags.NewCache(st), WithAnnouncer(&recordingAnnouncer{err: errors.New("redis down")}), WithLogger(logger.Discard()))

	_, err := svc.CreateTag(ctx, &models.CreateTagRequest{Slug: "go", Name: "Go"})
	require.NoError(t, err, "announce failure does not fail the write")

	_, err = svc.CreateTag(ctx, &models.CreateTagRequest{Slug: "GO", Name: "Golang"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = svc.CreateTag(ctx, &models.CreateTagRequest{Slug: "bad slug", Name: "Bad"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestListTags_OrderedByName(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	svc := New(st, tags.NewCache(st), WithLogger(logger.Discard()))
	for _, req := range []models.CreateTagRequest{
		{Slug: "rust", Name: "Rust"},
		{Slug: "go", Name: "Go"},
		{Slug: "c", Name: "C"},
	} {
		_, err := svc.CreateTag(ctx, &req)
		require.NoError(t, err)
	}

	list, err := svc.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"C", "Go", "Rust"}, []string{list[0].Name, list[1].Name, list[2].Name})
}
