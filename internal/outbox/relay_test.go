package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"overflow/internal/outbox"
	outboxmemory "overflow/internal/outbox/store/memory"
	"overflow/pkg/events"
	"overflow/pkg/platform/broker"
	brokermemory "overflow/pkg/platform/broker/memory"
	"overflow/pkg/platform/circuit"
)

const searchQueue = "questions.search"

type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    broker.Publisher
}

func (p *flakyPublisher) Publish(ctx context.Context, exchange string, msg broker.Message) error {
	p.mu.Lock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return errors.New("broker unreachable")
	}
	p.mu.Unlock()
	return p.inner.Publish(ctx, exchange, msg)
}

type RelaySuite struct {
	suite.Suite
	ctx    context.Context
	store  *outboxmemory.Store
	broker *brokermemory.Broker
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = outboxmemory.New()
	s.broker = brokermemory.New()
	s.Require().NoError(s.broker.Declare(s.ctx, searchQueue, broker.Binding{Exchange: events.Exchange}))
}

func (s *RelaySuite) appendEvent(questionID string, payload events.Payload) events.Envelope {
	env, err := events.New(questionID, payload, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, env))
	return env
}

// =============================================================================
// Draining
// =============================================================================

func (s *RelaySuite) TestDrainPublishesInOrderWithSequence() {
	created := s.appendEvent("q-1", events.QuestionCreated{Title: "Title", Content: "Body text", Tags: []string{"go"}})
	s.appendEvent("q-1", events.AnswerCountChanged{NewCount: 1})

	relay := outbox.NewRelay(s.store, s.broker, outbox.WithMetrics(outbox.NewMetrics(prometheus.NewRegistry())))
	n, err := relay.DrainOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Empty(s.store.Pending())

	msgs := s.broker.Drain(searchQueue)
	s.Require().Len(msgs, 2)

	first, err := events.Decode(msgs[0].Body)
	s.Require().NoError(err)
	s.Equal(created.ID, first.ID)
	s.Equal(int64(1), first.Sequence)
	s.Equal("q-1", msgs[0].Key)
	s.Equal(string(events.KindQuestionCreated), msgs[0].Header(broker.HeaderKind))
	s.Equal(created.ID.String(), msgs[0].Header(broker.HeaderEventID))

	second, err := events.Decode(msgs[1].Body)
	s.Require().NoError(err)
	s.Equal(int64(2), second.Sequence)
	s.Equal(events.KindAnswerCountChanged, second.Kind)
}

func (s *RelaySuite) TestFailedPublishStaysPendingAndBlocksLaterEntries() {
	s.appendEvent("q-1", events.QuestionCreated{Title: "Title", Content: "Body text"})
	s.appendEvent("q-1", events.QuestionDeleted{})

	pub := &flakyPublisher{failures: 1, inner: s.broker}
	relay := outbox.NewRelay(s.store, pub)

	n, err := relay.DrainOnce(s.ctx)
	s.Error(err)
	s.Equal(0, n)
	pending := s.store.Pending()
	s.Require().Len(pending, 2)
	s.Equal(1, pending[0].Attempts)
	s.Equal(0, s.broker.Pending(searchQueue))

	n, err = relay.DrainOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(2, s.broker.Pending(searchQueue))
}

// =============================================================================
// Circuit breaker
// =============================================================================

func (s *RelaySuite) TestBreakerStopsDrainingAfterThreshold() {
	s.appendEvent("q-1", events.QuestionCreated{Title: "Title", Content: "Body text"})

	now := time.Now()
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	pub := &flakyPublisher{failures: 2, inner: s.broker}
	relay := outbox.NewRelay(s.store, pub, outbox.WithBreaker(breaker))

	_, err := relay.DrainOnce(s.ctx)
	s.Error(err)
	_, err = relay.DrainOnce(s.ctx)
	s.Error(err)
	s.True(breaker.IsOpen())

	_, err = relay.DrainOnce(s.ctx)
	s.ErrorIs(err, outbox.ErrBreakerOpen)
	s.Equal(2, pub.calls, "no publish attempted while open")

	now = now.Add(time.Minute)
	n, err := relay.DrainOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.False(breaker.IsOpen())
}

// =============================================================================
// Run loop
// =============================================================================

func TestRelayRun_DrainsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := outboxmemory.New()
	b := brokermemory.New()
	require.NoError(t, b.Declare(ctx, searchQueue, broker.Binding{Exchange: events.Exchange}))

	relay := outbox.NewRelay(store, b, outbox.WithPollInterval(5*time.Millisecond), outbox.WithBatchSize(1))
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	for i := range 3 {
		env, err := events.New("q-run", events.AnswerCountChanged{NewCount: i}, time.Now())
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, env))
	}

	assert.Eventually(t, func() bool { return b.Pending(searchQueue) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Len(t, store.Published(), 3)
}
