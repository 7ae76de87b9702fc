package index

import (
	"time"

	"overflow/internal/search/projection"
)

// Document is the searchable shape of a question.
type Document struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	Tags              []string  `json:"tags"`
	CreatedAt         time.Time `json:"created_at"`
	AnswerCount       int       `json:"answer_count"`
	HasAcceptedAnswer bool      `json:"has_accepted_answer"`
}

// FromRecord derives the document from the merged projection record, so
// fields a partial event does not carry are never lost.
func FromRecord(rec projection.Record) Document {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return Document{
		ID:                rec.ID,
		Title:             rec.Title,
		Content:           rec.Content,
		Tags:              tags,
		CreatedAt:         rec.CreatedAt,
		AnswerCount:       rec.AnswerCount,
		HasAcceptedAnswer: rec.HasAcceptedAnswer,
	}
}

// toMap converts the document to field names matching the mapping. Times are
// indexed as unix milliseconds.
func (d Document) toMap() map[string]any {
	return map[string]any{
		"title":               d.Title,
		"content":             d.Content,
		"tags":                d.Tags,
		"created_at":          float64(d.CreatedAt.UnixMilli()),
		"answer_count":        float64(d.AnswerCount),
		"has_accepted_answer": d.HasAcceptedAnswer,
	}
}

func fromFields(id string, fields map[string]any) Document {
	doc := Document{ID: id, Tags: []string{}}
	if v, ok := fields["title"].(string); ok {
		doc.Title = v
	}
	if v, ok := fields["content"].(string); ok {
		doc.Content = v
	}
	switch v := fields["tags"].(type) {
	case string:
		doc.Tags = []string{v}
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				doc.Tags = append(doc.Tags, s)
			}
		}
	}
	if v, ok := fields["created_at"].(float64); ok {
		doc.CreatedAt = time.UnixMilli(int64(v)).UTC()
	}
	if v, ok := fields["answer_count"].(float64); ok {
		doc.AnswerCount = int(v)
	}
	if v, ok := fields["has_accepted_answer"].(bool); ok {
		doc.HasAcceptedAnswer = v
	}
	return doc
}
