package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

func newMsg(payload map[string]any) core.Message {
	return core.NewMessage(core.MessageTypeEvent, "test", payload)
}

func next(t *testing.T, sub *Subscription) core.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := sub.Next(ctx)
	require.NoError(t, err)
	return m
}

func TestPublishExactAndWildcard(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	exact, err := b.Subscribe(ctx, "echo.test")
	require.NoError(t, err)
	wild, err := b.Subscribe(ctx, "echo.*")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "plan.*")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "echo.test", newMsg(map[string]any{"n": 1})))

	assert.Equal(t, 1, next(t, exact).Payload["n"])
	assert.Equal(t, 1, next(t, wild).Payload["n"])

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = other.Next(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishDeliversOncePerSubscription(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "echo.test", "echo.*", "*.test")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "echo.test", newMsg(nil)))
	next(t, sub)

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = sub.Next(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "seq.*")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Publish(ctx, "seq.n", newMsg(map[string]any{"i": i})))
	}
	for i := 0; i < 50; i++ {
		assert.Equal(t, i, next(t, sub).Payload["i"])
	}
}

func TestPublishDeliversCopies(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	a, _ := b.Subscribe(ctx, "t")
	c, _ := b.Subscribe(ctx, "t")
	original := newMsg(map[string]any{"k": "v"})
	require.NoError(t, b.Publish(ctx, "t", original))

	ma := next(t, a)
	ma.Payload["k"] = "mutated"
	mc := next(t, c)

	assert.Equal(t, "v", mc.Payload["k"])
	assert.Equal(t, "v", original.Payload["k"])
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	b := New()
	defer b.Close()

	m := newMsg(nil)
	assert.NoError(t, b.Publish(context.Background(), "nobody.home", m))
	assert.NoError(t, b.Publish(context.Background(), "nobody.home", m))
}

func TestCancelRemovesSubscription(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "echo.*", "exact")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscriptions())

	require.NoError(t, b.Publish(ctx, "exact", newMsg(nil)))
	sub.Cancel()
	sub.Cancel()

	assert.Equal(t, 0, b.Subscriptions())
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	require.NoError(t, b.Publish(ctx, "echo.x", newMsg(nil)))
	assert.Empty(t, b.targets("echo.x"))
	assert.Empty(t, b.targets("exact"))
}

func TestSubscriptionCancelledWithContext(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "a.*")
	require.NoError(t, err)

	cancel()

	assert.Eventually(t, func() bool { return b.Subscriptions() == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, sub.Err(), ErrSubscriptionClosed)
}

func TestMessagesSequence(t *testing.T) {
	b := New()
	defer b.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub, err := b.Subscribe(ctx, "s")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "s", newMsg(map[string]any{"i": i})))
	}

	var got []int
	for m := range sub.Messages(ctx) {
		got = append(got, m.Payload["i"].(int))
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestPublishBlocksWhileQueueFull(t *testing.T) {
	b := New(func(o *Options) { o.QueueSize = 1 })
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "q", newMsg(map[string]any{"i": 0})))

	published := make(chan error, 1)
	go func() { published <- b.Publish(ctx, "q", newMsg(map[string]any{"i": 1})) }()

	select {
	case <-published:
		t.Fatal("publish should wait for queue space")
	case <-time.After(30 * time.Millisecond):
	}

	assert.Equal(t, 0, next(t, sub).Payload["i"])
	require.NoError(t, <-published)
	assert.Equal(t, 1, next(t, sub).Payload["i"])
}

func TestRequestResponse(t *testing.T) {
	b := New()
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agent, err := b.Subscribe(ctx, "echo.*")
	require.NoError(t, err)
	go func() {
		for m := range agent.Messages(ctx) {
			_ = b.Respond(ctx, m, map[string]any{
				"original_payload": m.Payload,
				"processed_by":     "echo_agent",
			})
		}
	}()

	resp, err := b.Request(ctx, "echo.test", map[string]any{"message": "hi"}, time.Second)
	require.NoError(t, err)

	assert.Equal(t, core.MessageTypeResponse, resp.Type)
	assert.Equal(t, "hi", resp.Payload["original_payload"].(map[string]any)["message"])
	assert.Equal(t, 1, b.Subscriptions())
}

func TestRequestTimeoutCleansUp(t *testing.T) {
	b := New()
	defer b.Close()

	start := time.Now()
	_, err := b.Request(context.Background(), "nobody.listens", nil, 30*time.Millisecond)

	assert.ErrorIs(t, err, core.ErrTimeout)
	var te *core.TimeoutError
	assert.True(t, errors.As(err, &te))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, b.Subscriptions())
}

func TestRequestTimeoutCoversBlockedPublish(t *testing.T) {
	b := New(func(o *Options) { o.QueueSize = 1 })
	defer b.Close()
	ctx := context.Background()

	_, err := b.Subscribe(ctx, "slow.*")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "slow.x", newMsg(nil)))

	done := make(chan error, 1)
	go func() {
		_, err := b.Request(ctx, "slow.x", map[string]any{"n": 1}, 50*time.Millisecond)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrTimeout)
		var te *core.TimeoutError
		assert.True(t, errors.As(err, &te))
	case <-time.After(2 * time.Second):
		t.Fatal("request ignored its timeout while the subscriber queue was full")
	}
	assert.Equal(t, 1, b.Subscriptions())
}

func TestRequestCancelledCleansUp(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := b.Request(ctx, "nobody.listens", nil, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, 0, b.Subscriptions())
}

func TestClose(t *testing.T) {
	b := New()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "x", newMsg(nil)))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.False(t, b.Running())
	assert.Equal(t, 0, b.Subscriptions())

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, core.ErrNotRunning)

	assert.ErrorIs(t, b.Publish(ctx, "x", newMsg(nil)), core.ErrNotRunning)
	_, err = b.Subscribe(ctx, "x")
	assert.ErrorIs(t, err, core.ErrNotRunning)
	_, err = b.Request(ctx, "x", nil, time.Millisecond)
	assert.ErrorIs(t, err, core.ErrNotRunning)
}
