package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/internal/testutil"
)

func newSupervisor() (*Supervisor, *testutil.RecordingLogger) {
	log := testutil.NewRecordingLogger()
	return New(func(o *Options) { o.Logger = log }), log
}

func TestRunWithTimeoutSuccess(t *testing.T) {
	s, _ := newSupervisor()

	res, err := s.RunWithTimeout(context.Background(), "ok", func(ctx context.Context) (core.Result, error) {
		return core.OK(map[string]any{"v": 1}), nil
	}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 1, res["v"])
	assert.False(t, s.Running("ok"))
	assert.Empty(t, s.Live())
}

func TestRunWithTimeoutPropagatesErrorUnchanged(t *testing.T) {
	s, _ := newSupervisor()
	boom := errors.New("boom")

	_, err := s.RunWithTimeout(context.Background(), "err", func(ctx context.Context) (core.Result, error) {
		return nil, boom
	}, time.Second)

	assert.Same(t, boom, err)
	assert.False(t, s.Running("err"))
}

func TestRunWithTimeoutTimesOut(t *testing.T) {
	s, log := newSupervisor()
	var cancelled atomic.Bool

	start := time.Now()
	_, err := s.RunWithTimeout(context.Background(), "slow", func(ctx context.Context) (core.Result, error) {
		<-ctx.Done()
		cancelled.Store(true)
		return nil, ctx.Err()
	}, 20*time.Millisecond)

	assert.ErrorIs(t, err, core.ErrTimeout)
	var te *core.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "slow", te.Name)
	assert.Contains(t, err.Error(), "timed out")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.False(t, s.Running("slow"))
	assert.Eventually(t, cancelled.Load, time.Second, time.Millisecond)

	entries := log.Find("task timed out")
	require.Len(t, entries, 1)
	assert.Equal(t, "slow", entries[0].Field("name"))
	assert.Equal(t, 20*time.Millisecond, entries[0].Field("timeout"))
}

func TestRunWithTimeoutOperationIgnoringContext(t *testing.T) {
	s, _ := newSupervisor()
	release := make(chan struct{})
	defer close(release)

	_, err := s.RunWithTimeout(context.Background(), "stubborn", func(ctx context.Context) (core.Result, error) {
		<-release
		return core.OK(nil), nil
	}, 10*time.Millisecond)

	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.False(t, s.Running("stubborn"))
}

func TestAwaitPrefersFinishedOutcome(t *testing.T) {
	stop := make(chan struct{})
	close(stop)

	for i := 0; i < 100; i++ {
		done := make(chan outcome, 1)
		done <- outcome{res: core.OK(nil)}
		o, ok := await(done, stop)
		require.True(t, ok)
		assert.Equal(t, "ok", o.res.Status())
	}

	_, ok := await(make(chan outcome, 1), stop)
	assert.False(t, ok)
}

func TestRunWithTimeoutRecoversPanic(t *testing.T) {
	s, _ := newSupervisor()

	_, err := s.RunWithTimeout(context.Background(), "panicky", func(ctx context.Context) (core.Result, error) {
		panic("kaboom")
	}, time.Second)

	assert.ErrorIs(t, err, core.ErrExecution)
	assert.Contains(t, err.Error(), "kaboom")
	assert.False(t, s.Running("panicky"))
}

func TestRunWithTimeoutParentCancellation(t *testing.T) {
	s, _ := newSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := s.RunWithTimeout(ctx, "cancelled", func(ctx context.Context) (core.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrTimeout)
	assert.False(t, s.Running("cancelled"))
}

func TestAtMostOneLiveTaskPerName(t *testing.T) {
	s, _ := newSupervisor()
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = s.RunWithTimeout(context.Background(), "dup", func(ctx context.Context) (core.Result, error) {
			close(started)
			<-release
			return core.OK(nil), nil
		}, 0)
	}()
	<-started

	assert.True(t, s.Running("dup"))
	live := s.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "dup", live[0].Name)
	assert.True(t, live[0].Deadline.IsZero())

	_, err := s.RunWithTimeout(context.Background(), "dup", func(ctx context.Context) (core.Result, error) {
		return core.OK(nil), nil
	}, 0)
	assert.ErrorIs(t, err, core.ErrTaskRunning)

	close(release)
	assert.Eventually(t, func() bool { return !s.Running("dup") }, time.Second, time.Millisecond)
}

func TestCancelLiveTask(t *testing.T) {
	s, _ := newSupervisor()
	started := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		_, err := s.RunWithTimeout(context.Background(), "victim", func(ctx context.Context) (core.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}, 0)
		errCh <- err
	}()
	<-started

	assert.True(t, s.Cancel("victim"))
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.False(t, s.Cancel("victim"))
}

func TestRunWithRetryExhausts(t *testing.T) {
	s, log := newSupervisor()
	var calls atomic.Int32
	var lastErr error

	delay := 20 * time.Millisecond
	start := time.Now()
	_, err := s.RunWithRetry(context.Background(), "flaky", func(ctx context.Context) (core.Result, error) {
		n := calls.Add(1)
		lastErr = fmt.Errorf("failure %d", n)
		return nil, lastErr
	}, RetryPolicy{Attempts: 3, Delay: delay})
	elapsed := time.Since(start)

	assert.Equal(t, int32(3), calls.Load())
	assert.GreaterOrEqual(t, elapsed, 2*delay)
	assert.ErrorIs(t, err, core.ErrRetryExhausted)
	assert.ErrorIs(t, err, lastErr)
	assert.Contains(t, err.Error(), "failure 3")
	assert.False(t, s.Running("flaky"))

	attempts := log.Find("task failed attempt")
	require.Len(t, attempts, 3)
	for i, e := range attempts {
		assert.Equal(t, "flaky", e.Field("name"))
		assert.Equal(t, i+1, e.Field("attempt"))
	}
	assert.Equal(t, 1, log.Count("task exceeded retry limit, giving up"))
}

func TestRunWithRetryRecovers(t *testing.T) {
	s, log := newSupervisor()
	var calls atomic.Int32

	res, err := s.RunWithRetry(context.Background(), "eventually", func(ctx context.Context) (core.Result, error) {
		if calls.Add(1) < 2 {
			return nil, errors.New("not yet")
		}
		return core.OK(nil), nil
	}, RetryPolicy{Attempts: 3, Delay: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, core.StatusOK, res.Status())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, log.Count("task failed attempt"))
	assert.Zero(t, log.Count("task exceeded retry limit, giving up"))
}

func TestRunWithRetryAttemptTimeout(t *testing.T) {
	s, _ := newSupervisor()

	_, err := s.RunWithRetry(context.Background(), "slow", func(ctx context.Context) (core.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, RetryPolicy{Attempts: 2, Delay: time.Millisecond, AttemptTimeout: 5 * time.Millisecond})

	assert.ErrorIs(t, err, core.ErrRetryExhausted)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.Equal(t, "retry_exhausted", core.ErrorKind(err))
	assert.Empty(t, s.Live())
}

func TestRunWithRetryPermanent(t *testing.T) {
	s, _ := newSupervisor()
	var calls atomic.Int32
	bad := errors.New("bad input")

	_, err := s.RunWithRetry(context.Background(), "perm", func(ctx context.Context) (core.Result, error) {
		calls.Add(1)
		return nil, Permanent(bad)
	}, RetryPolicy{Attempts: 5, Delay: time.Millisecond})

	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, err, bad)
	assert.NotErrorIs(t, err, core.ErrRetryExhausted)
}

func TestRunWithRetryCancelledDuringBackoff(t *testing.T) {
	s, _ := newSupervisor()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.RunWithRetry(ctx, "c", func(ctx context.Context) (core.Result, error) {
		cancel()
		return nil, errors.New("x")
	}, RetryPolicy{Attempts: 3, Delay: time.Hour})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Running("c"))
}
