package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

func TestSendReceiveAcknowledge(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	in := core.NewIntent("echo", map[string]any{"message": "hi"})
	require.NoError(t, b.SendIntent(ctx, in))
	in["mutated"] = true

	got, err := b.ReceiveIntents(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in.ID(), got[0].ID())
	assert.NotContains(t, got[0], "mutated")
	assert.Equal(t, []string{in.ID()}, b.Pending())

	require.NoError(t, b.AcknowledgeIntent(ctx, got[0]))
	assert.Empty(t, b.Pending())
}

func TestReceiveCollectsUntilIdle(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.SendIntent(ctx, core.NewIntent("echo", i)))
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = b.SendIntent(ctx, core.NewIntent("echo", 3))
	}()

	got, err := b.ReceiveIntents(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, in := range got {
		assert.Equal(t, i, in.Args(), "FIFO order")
	}
}

func TestReceiveEmptyBatch(t *testing.T) {
	b := New()
	defer b.Close()

	start := time.Now()
	got, err := b.ReceiveIntents(context.Background(), 20*time.Millisecond)
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestReceiveHonorsMaxBatch(t *testing.T) {
	b := New(func(o *Options) { o.MaxBatch = 2 })
	defer b.Close()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.SendIntent(ctx, core.NewIntent("echo", i)))
	}

	got, err := b.ReceiveIntents(ctx, time.Second)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	queued, _ := b.Len()
	assert.Equal(t, 3, queued)
}

func TestResponses(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.PublishResponse(ctx, core.Result{"status": "ok", "intent_id": "1"}))
	got, err := b.ReceiveResponses(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].IntentID())
}

func TestSendBlocksWhenFull(t *testing.T) {
	b := New(func(o *Options) { o.QueueSize = 1 })
	defer b.Close()

	require.NoError(t, b.SendIntent(context.Background(), core.NewIntent("a", nil)))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.SendIntent(ctx, core.NewIntent("b", nil)), context.DeadlineExceeded)
}

func TestValidation(t *testing.T) {
	b := New()
	defer b.Close()
	assert.ErrorIs(t, b.SendIntent(context.Background(), core.Intent{}), core.ErrValidation)
	assert.ErrorIs(t, b.AcknowledgeIntent(context.Background(), core.Intent{}), core.ErrValidation)
}

func TestClose(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.SendIntent(ctx, core.NewIntent("a", nil)))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.True(t, IsClosed(b.SendIntent(ctx, core.NewIntent("a", nil))))
	_, err := b.ReceiveIntents(ctx, time.Millisecond)
	assert.ErrorIs(t, err, core.ErrNotRunning)
	assert.ErrorIs(t, b.PublishResponse(ctx, core.OK(nil)), core.ErrNotRunning)
}

func TestCloseWakesReceiver(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.ReceiveIntents(context.Background(), time.Minute)
	}()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receiver not released by Close")
	}
}
