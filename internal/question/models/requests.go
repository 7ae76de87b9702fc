package models

import (
	"strings"

	str "overflow/pkg/platform/strings"
	"overflow/pkg/platform/validation"
)

// CreateQuestionRequest is the body of POST /questions and PUT /questions/{id}.
type CreateQuestionRequest struct {
	Title   string   `json:"title" validate:"required,min=5,max=300"`
	Content string   `json:"content" validate:"required,min=10"`
	Tags    []string `json:"tags" validate:"min=1,max=5"`
}

// Normalize trims text and canonicalizes tags before validation so the
// tag count limits apply to distinct slugs.
func (r *CreateQuestionRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Content = strings.TrimSpace(r.Content)
	r.Tags = str.NormalizeTags(r.Tags)
	if r.Tags == nil {
		r.Tags = []string{}
	}
}

func (r *CreateQuestionRequest) Validate() error {
	r.Normalize()
	return validation.Struct(r)
}

// CreateAnswerRequest is the body of the answer endpoints.
type CreateAnswerRequest struct {
	Content string `json:"content" validate:"required"`
}

func (r *CreateAnswerRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	return validation.Struct(r)
}
