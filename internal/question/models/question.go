package models

import "time"

// Question is the write-side source of truth.
//
// AnswerCount always equals the number of live answers; it is maintained in
// the same transaction as every answer insert and delete.
type Question struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	AskerID           string     `json:"asker_id"`
	AskerDisplayName  string     `json:"asker_display_name"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	ViewCount         int        `json:"view_count"`
	Votes             int        `json:"votes"`
	AnswerCount       int        `json:"answer_count"`
	HasAcceptedAnswer bool       `json:"has_accepted_answer"`
	TagSlugs          []string   `json:"tag_slugs"`
	Answers           []*Answer  `json:"answers,omitempty"`
}

// IsAskedBy reports whether userID owns the question.
func (q *Question) IsAskedBy(userID string) bool {
	return q.AskerID == userID
}

// Answer belongs to exactly one question and can only be removed while
// unaccepted.
type Answer struct {
	ID              string     `json:"id"`
	QuestionID      string     `json:"question_id"`
	Content         string     `json:"content"`
	UserID          string     `json:"user_id"`
	UserDisplayName string     `json:"user_display_name"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	Accepted        bool       `json:"accepted"`
}
