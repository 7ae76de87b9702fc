package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overflow/pkg/platform/broker"
)

func msg(kind, body string) broker.Message {
	return broker.Message{
		Key:     "q-1",
		Body:    []byte(body),
		Headers: map[string]string{broker.HeaderKind: kind},
	}
}

func receive(t *testing.T, ch <-chan *broker.Delivery) *broker.Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func TestPublish_FansOutToMatchingQueues(t *testing.T) {
	ctx := context.Background()
	b := New()
	defer b.Close()

	require.NoError(t, b.Declare(ctx, "all", broker.Binding{Exchange: "questions"}))
	require.NoError(t, b.Declare(ctx, "deletes", broker.Binding{Exchange: "questions", Kinds: []string{"deleted"}}))
	require.NoError(t, b.Declare(ctx, "other", broker.Binding{Exchange: "answers"}))

	require.NoError(t, b.Publish(ctx, "questions", msg("created", "a")))
	require.NoError(t, b.Publish(ctx, "questions", msg("deleted", "b")))

	assert.Equal(t, 2, b.Pending("all"))
	assert.Equal(t, 1, b.Pending("deletes"))
	assert.Equal(t, 0, b.Pending("other"))
}

func TestSubscribe_UnknownQueue(t *testing.T) {
	b := New()
	_, err := b.Subscribe(context.Background(), "missing")
	assert.ErrorIs(t, err, broker.ErrUnknownQueue)
}

func TestSubscribe_AckRemovesMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New()
	require.NoError(t, b.Declare(ctx, "q", broker.Binding{Exchange: "x"}))
	require.NoError(t, b.Publish(ctx, "x", msg("k", "one")))
	require.NoError(t, b.Publish(ctx, "x", msg("k", "two")))

	ch, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)

	first := receive(t, ch)
	assert.Equal(t, "one", string(first.Body))
	require.NoError(t, first.Ack(ctx))
	assert.ErrorIs(t, first.Ack(ctx), broker.ErrAlreadyAcked)

	second := receive(t, ch)
	assert.Equal(t, "two", string(second.Body))
	require.NoError(t, second.Ack(ctx))
}

func TestSubscribe_NackRedelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New()
	require.NoError(t, b.Declare(ctx, "q", broker.Binding{Exchange: "x"}))
	require.NoError(t, b.Publish(ctx, "x", msg("k", "one")))

	ch, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)

	d := receive(t, ch)
	require.NoError(t, d.Nack(ctx))

	again := receive(t, ch)
	assert.Equal(t, "one", string(again.Body))
	require.NoError(t, again.Ack(ctx))
}

func TestSubscribe_UnsettledMessageReturnsOnCancel(t *testing.T) {
	b := New(WithSettleTimeout(20 * time.Millisecond))
	require.NoError(t, b.Declare(context.Background(), "q", broker.Binding{Exchange: "x"}))
	require.NoError(t, b.Publish(context.Background(), "x", msg("k", "one")))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)
	_ = receive(t, ch)
	cancel()

	// Wait for the subscription to wind down.
	for range ch {
	}
	assert.Equal(t, 1, b.Pending("q"))
}

func TestSubscribe_AckAfterCancelWithinSettleTimeout(t *testing.T) {
	b := New(WithSettleTimeout(2 * time.Second))
	require.NoError(t, b.Declare(context.Background(), "q", broker.Binding{Exchange: "x"}))
	require.NoError(t, b.Publish(context.Background(), "x", msg("k", "one")))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)
	d := receive(t, ch)
	cancel()

	// The handler finishes after its subscription was cancelled.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Ack(context.Background()))

	for range ch {
	}
	assert.Equal(t, 0, b.Pending("q"))
}

func TestSubscribe_NackAfterCancelRequeues(t *testing.T) {
	b := New(WithSettleTimeout(2 * time.Second))
	require.NoError(t, b.Declare(context.Background(), "q", broker.Binding{Exchange: "x"}))
	require.NoError(t, b.Publish(context.Background(), "x", msg("k", "one")))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)
	d := receive(t, ch)
	cancel()
	require.NoError(t, d.Nack(context.Background()))

	for range ch {
	}
	assert.Equal(t, 1, b.Pending("q"))
}

func TestSubscribe_WakesOnLatePublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New()
	require.NoError(t, b.Declare(ctx, "q", broker.Binding{Exchange: "x"}))

	ch, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.Publish(context.Background(), "x", msg("k", "late"))
	}()

	d := receive(t, ch)
	assert.Equal(t, "late", string(d.Body))
}

func TestClose_RejectsPublish(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	err := b.Publish(context.Background(), "x", msg("k", "v"))
	assert.ErrorIs(t, err, broker.ErrClosed)
}
