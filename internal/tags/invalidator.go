package tags

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the Redis pub/sub channel tag changes are announced on.
const InvalidationChannel = "overflow:tags:invalidate"

// Invalidator propagates tag cache invalidations between service instances
// over Redis pub/sub. Delivery is best effort; the cache TTL bounds staleness
// when a message is missed.
type Invalidator struct {
	client  *redis.Client
	cache   *Cache
	logger  *slog.Logger
	channel string
}

func NewInvalidator(client *redis.Client, cache *Cache, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		client:  client,
		cache:   cache,
		logger:  logger,
		channel: InvalidationChannel,
	}
}

// Publish announces that the tag set changed.
func (i *Invalidator) Publish(ctx context.Context, slug string) error {
	return i.client.Publish(ctx, i.channel, slug).Err()
}

// Run invalidates the local cache for every announcement until ctx ends.
func (i *Invalidator) Run(ctx context.Context) error {
	sub := i.client.Subscribe(ctx, i.channel)
	defer sub.Close()

	// Block until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	i.logger.InfoContext(ctx, "listening for tag invalidations", "channel", i.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			i.cache.Invalidate()
			i.logger.DebugContext(ctx, "tag cache invalidated", "slug", msg.Payload)
		}
	}
}
