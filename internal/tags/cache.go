// Package tags owns the tag reference data and the in-process cache the
// question write path validates tag slugs against.
package tags

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"overflow/pkg/platform/sentinel"
	str "overflow/pkg/platform/strings"
)

// ErrUnavailable is returned when the tag set has never been loaded and the
// loader fails.
var ErrUnavailable = fmt.Errorf("tag set %w", sentinel.ErrUnavailable)

const (
	defaultTTL         = 2 * time.Hour
	defaultLoadTimeout = 10 * time.Second
	// staleRetry is how long a stale snapshot is served before the next load
	// attempt after a failed reload.
	defaultStaleRetry = 30 * time.Second

	flightKey = "tags"
)

// Loader reads the full set of valid slugs from the source of truth.
type Loader interface {
	ListSlugs(ctx context.Context) ([]string, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]string, error)

func (f LoaderFunc) ListSlugs(ctx context.Context) ([]string, error) { return f(ctx) }

// Cache answers tag-set membership from a snapshot that is reloaded at most
// once per TTL. Concurrent misses share a single load.
//
// The snapshot is eventually consistent: a tag created after the last load
// is rejected until the TTL elapses or Invalidate is called. Writers that
// create tags should call Invalidate (locally, and through the Invalidator
// for other instances).
//
// When a reload fails the previous snapshot keeps being served. With no
// snapshot at all IsValidSet returns ErrUnavailable.
type Cache struct {
	loader      Loader
	ttl         time.Duration
	loadTimeout time.Duration
	staleRetry  time.Duration
	now         func() time.Time
	logger      *slog.Logger
	metrics     *Metrics

	group singleflight.Group

	mu        sync.RWMutex
	snapshot  map[string]struct{}
	expiresAt time.Time
	// generation is bumped by Invalidate. A reload that started under an
	// older generation may have read the store before the change it was
	// invalidated for, so it never refreshes expiresAt.
	generation uint64
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

func WithStaleRetry(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.staleRetry = d
		}
	}
}

func NewCache(loader Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		loader:      loader,
		ttl:         defaultTTL,
		loadTimeout: defaultLoadTimeout,
		staleRetry:  defaultStaleRetry,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsValidSet reports whether every slug is in the tag set. Matching is
// case-insensitive and ignores surrounding whitespace. An empty list is valid.
func (c *Cache) IsValidSet(ctx context.Context, slugs []string) (bool, error) {
	if len(slugs) == 0 {
		return true, nil
	}
	snapshot, err := c.current(ctx)
	if err != nil {
		return false, err
	}
	for _, slug := range slugs {
		if _, ok := snapshot[str.NormalizeTag(slug)]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Invalidate forces the next lookup to reload. The current snapshot remains
// available as a fallback if that reload fails.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.generation++
	c.expiresAt = time.Time{}
	c.mu.Unlock()
	c.group.Forget(flightKey)
	c.metrics.incInvalidations()
}

func (c *Cache) current(ctx context.Context) (map[string]struct{}, error) {
	c.mu.RLock()
	snapshot, fresh := c.snapshot, c.now().Before(c.expiresAt)
	c.mu.RUnlock()
	if fresh {
		c.metrics.incHits()
		return snapshot, nil
	}
	c.metrics.incMisses()

	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.reload(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]struct{}), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// reload runs under the singleflight group. The load outlives the caller that
// triggered it so a cancelled request does not fail the other waiters.
func (c *Cache) reload(ctx context.Context) (map[string]struct{}, error) {
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	defer cancel()

	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	start := c.now()
	slugs, err := c.loader.ListSlugs(loadCtx)
	if err != nil {
		c.metrics.incLoadFailures()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.snapshot == nil {
			c.logger.ErrorContext(ctx, "tag cache load failed with no snapshot", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if c.generation == generation {
			c.expiresAt = c.now().Add(c.staleRetry)
		}
		c.logger.WarnContext(ctx, "tag cache reload failed, serving stale snapshot",
			"error", err,
			"size", len(c.snapshot),
		)
		return c.snapshot, nil
	}

	snapshot := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		if s := str.NormalizeTag(slug); s != "" {
			snapshot[s] = struct{}{}
		}
	}

	c.mu.Lock()
	switch {
	case c.generation == generation:
		c.snapshot = snapshot
		c.expiresAt = c.now().Add(c.ttl)
	case c.snapshot == nil:
		// Invalidated mid-load: usable as a fallback, never as fresh.
		c.snapshot = snapshot
	}
	c.mu.Unlock()

	c.metrics.incLoads()
	c.metrics.setSize(len(snapshot))
	c.logger.DebugContext(ctx, "tag cache loaded",
		"size", len(snapshot),
		"duration_ms", c.now().Sub(start).Milliseconds(),
	)
	return snapshot, nil
}
