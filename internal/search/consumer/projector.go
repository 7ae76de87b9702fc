package consumer

import (
	"context"
	"fmt"

	"overflow/internal/search/index"
	"overflow/internal/search/projection"
	"overflow/pkg/events"
)

// Projector folds events into the projection store and re-derives the
// question's index document from the merged record.
type Projector struct {
	store *projection.Store
	index *index.Index
}

func NewProjector(store *projection.Store, idx *index.Index) *Projector {
	return &Projector{store: store, index: idx}
}

// Register installs the projector for every event kind.
func (p *Projector) Register(r *Router) {
	for _, kind := range events.AllKinds() {
		r.Register(kind, p)
	}
}

// Handle applies the event. The index is re-derived even when the record
// did not change, so a redelivery repairs an index write that failed after
// the record was committed.
func (p *Projector) Handle(ctx context.Context, env events.Envelope, payload events.Payload) error {
	payload = sanitize(payload)
	rec, err := p.store.Update(ctx, env.QuestionID, func(r *projection.Record) bool {
		return r.Apply(env, payload)
	})
	if err != nil {
		return err
	}
	return p.Sync(rec)
}

// Sync makes the index agree with rec.
func (p *Projector) Sync(rec projection.Record) error {
	if !rec.Searchable() {
		if err := p.index.Delete(rec.ID); err != nil {
			return fmt.Errorf("remove %s from index: %w", rec.ID, err)
		}
		return nil
	}
	return p.index.Upsert(index.FromRecord(rec))
}

func sanitize(payload events.Payload) events.Payload {
	switch p := payload.(type) {
	case events.QuestionCreated:
		p.Content = StripHTML(p.Content)
		return p
	case events.QuestionUpdated:
		p.Content = StripHTML(p.Content)
		return p
	}
	return payload
}

// Rebuild re-derives every index document from the projection store. It is
// run when the index had to be recreated.
func (p *Projector) Rebuild(ctx context.Context) (int, error) {
	n := 0
	err := p.store.Each(ctx, func(rec projection.Record) error {
		if err := p.Sync(rec); err != nil {
			return err
		}
		if rec.Searchable() {
			n++
		}
		return nil
	})
	return n, err
}
