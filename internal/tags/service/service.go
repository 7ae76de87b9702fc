package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"overflow/internal/tags/models"
	dErrors "overflow/pkg/domain-errors"
	"overflow/pkg/platform/sentinel"
	"overflow/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, tag *models.Tag) error
	List(ctx context.Context) ([]*models.Tag, error)
}

// Invalidator drops cached tag snapshots.
type Invalidator interface {
	Invalidate()
}

// Announcer tells other instances that the tag set changed.
type Announcer interface {
	Publish(ctx context.Context, slug string) error
}

// Service manages tag reference data.
type Service struct {
	store     Store
	cache     Invalidator
	announcer Announcer
	logger    *slog.Logger
}

type Option func(*Service)

// WithAnnouncer enables cross-instance cache invalidation.
func WithAnnouncer(a Announcer) Option {
	return func(s *Service) {
		s.announcer = a
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, cache Invalidator, opts ...Option) *Service {
	s := &Service{store: store, cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListTags returns every tag ordered by name.
func (s *Service) ListTags(ctx context.Context) ([]*models.Tag, error) {
	tags, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tags")
	}
	return tags, nil
}

// CreateTag stores a new tag and invalidates the tag caches so it becomes
// usable on questions without waiting for the cache TTL.
func (s *Service) CreateTag(ctx context.Context, req *models.CreateTagRequest) (*models.Tag, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tag := &models.Tag{
		ID:          uuid.New(),
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   requestcontext.Now(ctx).UTC(),
	}
	if err := s.store.Create(ctx, tag); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "tag already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tag")
	}

	s.cache.Invalidate()
	if s.announcer != nil {
		if err := s.announcer.Publish(ctx, tag.Slug); err != nil {
			// Other instances pick the tag up when their TTL expires.
			s.logger.WarnContext(ctx, "failed to announce tag invalidation",
				"slug", tag.Slug,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	s.logger.InfoContext(ctx, "tag created",
		"slug", tag.Slug,
		"request_id", requestcontext.RequestID(ctx),
	)
	return tag, nil
}
