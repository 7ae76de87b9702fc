package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	str "overflow/pkg/platform/strings"
	"overflow/pkg/platform/validation"
)

// Tag is reference data: questions may only carry slugs of existing tags.
type Tag struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateTagRequest is the body of POST /tags.
type CreateTagRequest struct {
	Slug        string `json:"slug" validate:"required,max=50,slug"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

func (r *CreateTagRequest) Normalize() {
	r.Slug = str.NormalizeTag(r.Slug)
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *CreateTagRequest) Validate() error {
	r.Normalize()
	return validation.Struct(r)
}
