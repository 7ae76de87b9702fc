// Package projection keeps the read-side state of every question the search
// service has heard about, together with the production sequence of the
// last event applied to each field group. Events may arrive in any order and
// more than once; applying them through Record.Apply converges to the same
// state as applying them in production order exactly once.
package projection

import (
	"slices"
	"time"

	"overflow/pkg/events"
)

// Record is the merged projection of one question.
//
// Field groups are versioned independently because each event kind only
// touches its own group: Created and Updated own the content group,
// AnswerCountChanged owns the count and AnswerAccepted owns the flag.
type Record struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	Tags              []string  `json:"tags"`
	CreatedAt         time.Time `json:"created_at"`
	AnswerCount       int       `json:"answer_count"`
	HasAcceptedAnswer bool      `json:"has_accepted_answer"`

	ContentVersion  int64 `json:"content_version"`
	CountVersion    int64 `json:"count_version"`
	AcceptedVersion int64 `json:"accepted_version"`
	Deleted         bool  `json:"deleted"`
	DeletedVersion  int64 `json:"deleted_version"`
}

// Searchable reports whether the record should be present in the index.
// A record that has only seen count or accept events has no content yet.
func (r *Record) Searchable() bool {
	return !r.Deleted && r.ContentVersion > 0
}

// Apply folds one event into the record and reports whether anything
// changed. The envelope kind selects the branch; a payload that does not
// match its kind, or an unknown kind, leaves the record untouched. Content
// for Created and Updated must already be sanitized.
func (r *Record) Apply(env events.Envelope, payload events.Payload) bool {
	seq := env.Sequence
	if r.Deleted {
		// Nothing follows a delete in production order, so every
		// other event for a tombstoned id is stale.
		return false
	}

	switch env.Kind {
	case events.KindQuestionCreated:
		p, ok := payload.(events.QuestionCreated)
		if !ok {
			return false
		}
		if seq <= r.ContentVersion {
			if r.CreatedAt.IsZero() && !p.CreatedAt.IsZero() {
				r.CreatedAt = p.CreatedAt.UTC()
				return true
			}
			return false
		}
		r.setContent(seq, p.Title, p.Content, p.Tags)
		if !p.CreatedAt.IsZero() {
			r.CreatedAt = p.CreatedAt.UTC()
		}
		return true

	case events.KindQuestionUpdated:
		p, ok := payload.(events.QuestionUpdated)
		if !ok || seq <= r.ContentVersion {
			return false
		}
		r.setContent(seq, p.Title, p.Content, p.Tags)
		return true

	case events.KindAnswerCountChanged:
		p, ok := payload.(events.AnswerCountChanged)
		if !ok || seq <= r.CountVersion {
			return false
		}
		r.AnswerCount = p.NewCount
		r.CountVersion = seq
		return true

	case events.KindAnswerAccepted:
		if _, ok := payload.(events.AnswerAccepted); !ok || seq <= r.AcceptedVersion {
			return false
		}
		r.HasAcceptedAnswer = true
		r.AcceptedVersion = seq
		return true

	case events.KindQuestionDeleted:
		if _, ok := payload.(events.QuestionDeleted); !ok {
			return false
		}
		*r = Record{ID: r.ID, Deleted: true, DeletedVersion: seq}
		return true
	}
	return false
}

func (r *Record) setContent(seq int64, title, content string, tags []string) {
	r.Title = title
	r.Content = content
	r.Tags = slices.Clone(tags)
	r.ContentVersion = seq
}
