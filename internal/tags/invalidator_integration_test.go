//go:build integration

package tags_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"overflow/internal/platform/logger"
	"overflow/internal/tags"
	"overflow/pkg/testutil/containers"
)

type InvalidatorSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestInvalidatorSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(InvalidatorSuite))
}

func (s *InvalidatorSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *InvalidatorSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

// TestAnnouncementInvalidatesOtherInstance runs two caches, as two service
// instances would, and checks a tag created through one becomes valid in
// the other without waiting for the TTL.
func (s *InvalidatorSuite) TestAnnouncementInvalidatesOtherInstance() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slugs atomic.Value
	slugs.Store([]string{"go"})
	var loads atomic.Int32
	loader := tags.LoaderFunc(func(context.Context) ([]string, error) {
		loads.Add(1)
		return slugs.Load().([]string), nil
	})

	remote := tags.NewCache(loader, tags.WithTTL(time.Hour))
	listener := tags.NewInvalidator(s.redis.Client, remote, logger.Discard())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	ok, err := remote.IsValidSet(ctx, []string{"rust"})
	s.Require().NoError(err)
	s.False(ok)

	slugs.Store([]string{"go", "rust"})
	announcer := tags.NewInvalidator(s.redis.Client, tags.NewCache(loader), logger.Discard())

	s.Eventually(func() bool {
		// Keep announcing until the listener's subscription is live.
		_ = announcer.Publish(ctx, "rust")
		ok, err := remote.IsValidSet(ctx, []string{"rust"})
		return err == nil && ok
	}, 10*time.Second, 50*time.Millisecond)
	s.GreaterOrEqual(loads.Load(), int32(2))

	cancel()
	s.NoError(<-done)
}
