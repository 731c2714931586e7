package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
	tu "github.com/ochoaughini/Cognition-Lattice/internal/testutil"
	"github.com/ochoaughini/Cognition-Lattice/metric"
	"github.com/ochoaughini/Cognition-Lattice/registry"
	"github.com/ochoaughini/Cognition-Lattice/supervisor"
)

func newDispatcher(t *testing.T, optFns ...func(o *Options)) (*Dispatcher, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	return New(reg, nil, optFns...), reg
}

func TestDispatchSuccess(t *testing.T) {
	d, reg := newDispatcher(t)
	h := &tu.MockHandler{}
	h.On("Execute", mock.Anything, mock.Anything).Return(core.Result{"status": "ok", "echo": "hi"}, nil)
	require.NoError(t, reg.RegisterHandler("echo", h))

	intent := tu.NewIntentBuilder("echo").ID("i-1").Args(map[string]any{"message": "hi"}).Build()
	res := d.Dispatch(context.Background(), intent)

	assert.Equal(t, "ok", res.Status())
	assert.Equal(t, "hi", res["echo"])
	assert.Equal(t, "i-1", res.IntentID())
	assert.Equal(t, "echo", res[core.KeyIntent])
	h.AssertExpectations(t)
}

func TestDispatchUnknownIntent(t *testing.T) {
	d, _ := newDispatcher(t)
	res := d.Dispatch(context.Background(), core.Intent{core.KeyIntent: "missing", core.KeyIntentID: "x"})

	assert.True(t, res.IsError())
	assert.Equal(t, "No agent for intent missing", res.Message())
	assert.Equal(t, "dispatch", res[core.KeyErrorKind])
	assert.Equal(t, "x", res.IntentID())
}

func TestDispatchMissingType(t *testing.T) {
	d, _ := newDispatcher(t)
	res := d.Dispatch(context.Background(), core.Intent{"args": 1})

	assert.True(t, res.IsError())
	assert.Equal(t, "validation", res[core.KeyErrorKind])
	assert.NotEmpty(t, res.IntentID())
}

func TestDispatchHandlerErrorBecomesResult(t *testing.T) {
	d, reg := newDispatcher(t)
	require.NoError(t, reg.RegisterHandler("act", core.HandlerFunc(func(context.Context, core.Intent) (core.Result, error) {
		return nil, errors.New("Action failed")
	})))

	res := d.Dispatch(context.Background(), core.NewIntent("act", nil))
	assert.True(t, res.IsError())
	assert.Equal(t, "Action failed", res.Message())
	assert.Equal(t, "execution", res[core.KeyErrorKind])
}

func TestDispatchRecoversPanic(t *testing.T) {
	d, reg := newDispatcher(t)
	require.NoError(t, reg.RegisterHandler("boom", core.HandlerFunc(func(context.Context, core.Intent) (core.Result, error) {
		panic("kaboom")
	})))

	res := d.Dispatch(context.Background(), core.NewIntent("boom", nil))
	assert.True(t, res.IsError())
	assert.Contains(t, res.Message(), "kaboom")
}

func TestDispatchTimeout(t *testing.T) {
	d, reg := newDispatcher(t, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	require.NoError(t, reg.RegisterHandler("slow", core.HandlerFunc(func(ctx context.Context, _ core.Intent) (core.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	intent := core.NewIntent("slow", nil)
	res := d.Dispatch(context.Background(), intent)
	assert.Equal(t, "timeout", res[core.KeyErrorKind])
	assert.False(t, d.Supervisor().Running(intent.ID()))
}

func TestDispatchRetries(t *testing.T) {
	var calls atomic.Int32
	d, reg := newDispatcher(t, func(o *Options) {
		o.Retry = supervisor.RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	})
	require.NoError(t, reg.RegisterHandler("flaky", core.HandlerFunc(func(context.Context, core.Intent) (core.Result, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("not yet")
		}
		return core.OK(nil), nil
	})))

	res := d.Dispatch(context.Background(), core.NewIntent("flaky", nil))
	assert.Equal(t, "ok", res.Status())
	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatchRetryExhausted(t *testing.T) {
	d, reg := newDispatcher(t, func(o *Options) {
		o.Retry = supervisor.RetryPolicy{Attempts: 2, Delay: time.Millisecond}
	})
	require.NoError(t, reg.RegisterHandler("bad", core.HandlerFunc(func(context.Context, core.Intent) (core.Result, error) {
		return nil, errors.New("nope")
	})))

	res := d.Dispatch(context.Background(), core.NewIntent("bad", nil))
	assert.Equal(t, "retry_exhausted", res[core.KeyErrorKind])
	assert.Contains(t, res.Message(), "nope")
}

func TestDispatchDoesNotMutateInputs(t *testing.T) {
	shared := core.Result{"value": 1}
	d, reg := newDispatcher(t)
	require.NoError(t, reg.RegisterHandler("x", core.HandlerFunc(func(context.Context, core.Intent) (core.Result, error) {
		return shared, nil
	})))

	intent := core.Intent{core.KeyIntent: "x"}
	res := d.Dispatch(context.Background(), intent)

	assert.Equal(t, "ok", res.Status())
	assert.NotContains(t, intent, core.KeyIntentID)
	assert.NotContains(t, shared, core.KeyStatus)
}

func TestDispatchErrorStatusCountsAsFailure(t *testing.T) {
	m := metric.NewMetrics()
	d, reg := newDispatcher(t, func(o *Options) { o.Metrics = m })
	require.NoError(t, reg.RegisterHandler("soft", core.HandlerFunc(func(context.Context, core.Intent) (core.Result, error) {
		return core.Result{"status": "error", "message": "soft failure"}, nil
	})))
	require.NoError(t, reg.RegisterHandler("fine", core.HandlerFunc(func(context.Context, core.Intent) (core.Result, error) {
		return nil, nil
	})))

	d.Dispatch(context.Background(), core.NewIntent("soft", nil))
	res := d.Dispatch(context.Background(), core.NewIntent("fine", nil))

	assert.Equal(t, "ok", res.Status())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntentsFailure.WithLabelValues("soft")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntentsSuccess.WithLabelValues("fine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntentsReceived.WithLabelValues("soft")))
}

func TestBeforeHookRejects(t *testing.T) {
	d, reg := newDispatcher(t)
	h := &tu.MockHandler{}
	require.NoError(t, reg.RegisterHandler("echo", h))
	d.Hooks().Register(NewFunctionHook(HookBeforeDispatch, func(context.Context, *HookContext) error {
		return errors.New("denied")
	}))

	res := d.Dispatch(context.Background(), core.NewIntent("echo", nil))
	assert.True(t, res.IsError())
	assert.Contains(t, res.Message(), "denied")
	h.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestAfterAndErrorHooks(t *testing.T) {
	d, reg := newDispatcher(t)
	require.NoError(t, reg.RegisterHandler("fail", core.HandlerFunc(func(context.Context, core.Intent) (core.Result, error) {
		return nil, errors.New("x")
	})))

	var after, onErr []string
	d.Hooks().Register(NewFunctionHook(HookAfterDispatch, func(_ context.Context, hc *HookContext) error {
		after = append(after, hc.Result.Status())
		return errors.New("ignored")
	}))
	d.Hooks().Register(NewFunctionHook(HookOnError, func(_ context.Context, hc *HookContext) error {
		onErr = append(onErr, hc.Err.Error())
		return nil
	}))

	res := d.Dispatch(context.Background(), core.NewIntent("fail", nil))
	assert.True(t, res.IsError())
	assert.Equal(t, []string{"error"}, after)
	assert.Equal(t, []string{"x"}, onErr)
}

func TestDispatchLogsOutcome(t *testing.T) {
	log := tu.NewRecordingLogger()
	d, _ := newDispatcher(t, func(o *Options) { o.Logger = log })

	d.Dispatch(context.Background(), core.NewIntent("nobody", nil))
	entries := log.Find("intent dispatch failed")
	require.Len(t, entries, 1)
	assert.Equal(t, "nobody", entries[0].Field("intent"))
}
