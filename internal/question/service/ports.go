package service

import (
	"context"

	"overflow/pkg/events"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// TagValidator answers whether every slug names an existing tag.
type TagValidator interface {
	IsValidSet(ctx context.Context, slugs []string) (bool, error)
}

// Outbox persists events in the caller's transaction for later relay.
type Outbox interface {
	Append(ctx context.Context, env events.Envelope) error
}
