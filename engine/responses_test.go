package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

func TestResponseStoreAddGet(t *testing.T) {
	s := NewResponseStore()
	s.Add(core.Result{"status": "ok"})
	assert.Equal(t, 0, s.Len())

	s.Add(core.Result{"status": "ok", "intent_id": "1"})
	assert.Equal(t, 1, s.Len())
	res, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "ok", res.Status())
	_, ok = s.Get("1")
	assert.False(t, ok)
}

func TestResponseStoreWait(t *testing.T) {
	s := NewResponseStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := make(chan core.Result, 1)
	go func() {
		res, err := s.Wait(ctx, "42")
		if err == nil {
			got <- res
		}
	}()
	time.Sleep(20 * time.Millisecond)
	s.Add(core.Result{"status": "ok", "intent_id": "42"})

	select {
	case res := <-got:
		assert.Equal(t, "42", res.IntentID())
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}
	assert.Equal(t, 0, s.Len())

	s.Add(core.Result{"status": "ok", "intent_id": "7"})
	res, err := s.Wait(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "7", res.IntentID())
}

func TestResponseStoreWaitTimeout(t *testing.T) {
	s := NewResponseStore()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx, "never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s.Add(core.Result{"status": "ok", "intent_id": "never"})
	assert.Equal(t, 1, s.Len())
}

func TestResponseStoreSweepExpired(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewResponseStore(func(o *ResponseStoreOptions) {
		o.TTL = time.Minute
		o.Now = func() time.Time { return now }
	})
	s.Add(core.Result{"status": "ok", "intent_id": "old"})
	now = now.Add(30 * time.Second)
	s.Add(core.Result{"status": "ok", "intent_id": "new"})

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	_, ok := s.Get("old")
	assert.False(t, ok)
	_, ok = s.Get("new")
	assert.True(t, ok)
}

func TestResponseStoreMaxSizeEvictsOldest(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewResponseStore(func(o *ResponseStoreOptions) {
		o.TTL = 0
		o.MaxSize = 2
		o.Now = func() time.Time { return now }
	})
	for _, id := range []string{"a", "b", "c"} {
		s.Add(core.Result{"status": "ok", "intent_id": id})
		now = now.Add(time.Second)
	}

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("c")
	assert.True(t, ok)
	assert.Zero(t, s.Sweep())
}

func TestEngineSweepsResponses(t *testing.T) {
	eng, _ := newEngine(t, func(o *Options) {
		o.Responses = NewResponseStore(func(so *ResponseStoreOptions) { so.TTL = time.Millisecond })
		o.Config.ResponseSweep = 10 * time.Millisecond
	})
	eng.Responses().Add(core.Result{"status": "ok", "intent_id": "stale"})

	require.NoError(t, eng.Start(context.Background()))
	defer func() { require.NoError(t, eng.Stop()) }()

	assert.Eventually(t, func() bool { return eng.Responses().Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCheckBroker(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, CheckBroker(ctx, ""))
	assert.NoError(t, CheckBroker(ctx, "nats://localhost:4222"))
	assert.NoError(t, CheckBroker(ctx, "localhost:6379"))
	assert.Error(t, CheckBroker(ctx, "redis://"))
	assert.Equal(t, "broker.internal", brokerHost("redis://broker.internal:6379/0"))
}
