package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"overflow/internal/question/models"
	"overflow/pkg/platform/sentinel"
)

// InMemory keeps questions and answers in maps. Pair it with a
// tx.LockRunner; it has no rollback of its own.
type InMemory struct {
	mu        sync.RWMutex
	questions map[string]*models.Question
	answers   map[string]*models.Answer
}

func NewInMemory() *InMemory {
	return &InMemory{
		questions: make(map[string]*models.Question),
		answers:   make(map[string]*models.Answer),
	}
}

func (s *InMemory) CreateQuestion(_ context.Context, q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; ok {
		return sentinel.ErrConflict
	}
	s.questions[q.ID] = copyQuestion(q)
	return nil
}

func (s *InMemory) ListQuestions(_ context.Context, tag string) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Question, 0, len(s.questions))
	for _, q := range s.questions {
		if tag != "" && !slices.Contains(q.TagSlugs, tag) {
			continue
		}
		out = append(out, copyQuestion(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) FindQuestion(_ context.Context, id string) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyQuestion(q), nil
}

func (s *InMemory) IncrementViewCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	q.ViewCount++
	return nil
}

func (s *InMemory) UpdateQuestion(_ context.Context, q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.questions[q.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Title = q.Title
	existing.Content = q.Content
	existing.TagSlugs = slices.Clone(q.TagSlugs)
	existing.UpdatedAt = q.UpdatedAt
	return nil
}

func (s *InMemory) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.questions, id)
	for aid, a := range s.answers {
		if a.QuestionID == id {
			delete(s.answers, aid)
		}
	}
	return nil
}

func (s *InMemory) ListAnswers(_ context.Context, questionID string) ([]*models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Answer
	for _, a := range s.answers {
		if a.QuestionID == questionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) CreateAnswer(_ context.Context, a *models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[a.QuestionID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *a
	s.answers[a.ID] = &cp
	return nil
}

func (s *InMemory) FindAnswer(_ context.Context, id string) (*models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) UpdateAnswer(_ context.Context, a *models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.answers[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Content = a.Content
	existing.UpdatedAt = a.UpdatedAt
	return nil
}

func (s *InMemory) DeleteAnswer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if a.Accepted {
		return sentinel.ErrInvalidState
	}
	delete(s.answers, id)
	return nil
}

func (s *InMemory) AdjustAnswerCount(_ context.Context, questionID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	q.AnswerCount += delta
	return q.AnswerCount, nil
}

func (s *InMemory) AcceptAnswer(_ context.Context, questionID, answerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	a, ok := s.answers[answerID]
	if !ok || a.QuestionID != questionID {
		return sentinel.ErrNotFound
	}
	if q.HasAcceptedAnswer {
		return sentinel.ErrInvalidState
	}
	q.HasAcceptedAnswer = true
	a.Accepted = true
	return nil
}

func copyQuestion(q *models.Question) *models.Question {
	cp := *q
	cp.TagSlugs = slices.Clone(q.TagSlugs)
	cp.Answers = nil
	return &cp
}
