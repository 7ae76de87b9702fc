package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"overflow/internal/tags/models"
	"overflow/pkg/platform/sentinel"
)

// InMemory is a tag store for tests and single-process runs.
type InMemory struct {
	mu   sync.RWMutex
	tags map[string]*models.Tag // keyed by lowercased slug
}

func NewInMemory() *InMemory {
	return &InMemory{tags: make(map[string]*models.Tag)}
}

func (s *InMemory) Create(_ context.Context, tag *models.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(tag.Slug)
	if _, ok := s.tags[key]; ok {
		return sentinel.ErrConflict
	}
	cp := *tag
	s.tags[key] = &cp
	return nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) ListSlugs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t.Slug)
	}
	return out, nil
}
