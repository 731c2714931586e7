package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrExecutorClosed is returned by Do and Go after Shutdown.
var ErrExecutorClosed = errors.New("executor shut down")

// ExecutorStats is a point in time view of an executor.
type ExecutorStats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

// Executor bounds how many functions run at once.
type Executor struct {
	name    string
	workers int
	sem     *semaphore.Weighted

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewExecutor creates an executor running at most workers functions at once.
func NewExecutor(name string, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		name:    name,
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name returns the executor name.
func (e *Executor) Name() string { return e.name }

// Workers returns the concurrency bound.
func (e *Executor) Workers() int { return e.workers }

func (e *Executor) enter() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("%s: %w", e.name, ErrExecutorClosed)
	}
	e.wg.Add(1)
	return nil
}

// acquire waits for a slot. The returned context is cancelled when ctx is
// done or the executor shuts down.
func (e *Executor) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	if err := e.sem.Acquire(runCtx, 1); err != nil {
		stop()
		cancel()
		if e.ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%s: %w", e.name, ErrExecutorClosed)
		}
		return nil, nil, err
	}
	return runCtx, func() { stop(); cancel() }, nil
}

func (e *Executor) run(ctx context.Context, fn func(context.Context) error) error {
	e.active.Add(1)
	defer func() {
		e.active.Add(-1)
		e.sem.Release(1)
	}()
	err := fn(ctx)
	if err != nil {
		e.failed.Add(1)
	} else {
		e.completed.Add(1)
	}
	return err
}

// Do runs fn once a slot is free and returns its error.
func (e *Executor) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.wg.Done()

	runCtx, release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return e.run(runCtx, fn)
}

// Go waits for a slot and runs fn in the background. The error returned by
// Go only reports whether fn was started.
func (e *Executor) Go(ctx context.Context, fn func(context.Context) error) error {
	if err := e.enter(); err != nil {
		return err
	}
	runCtx, release, err := e.acquire(ctx)
	if err != nil {
		e.wg.Done()
		return err
	}
	go func() {
		defer e.wg.Done()
		defer release()
		_ = e.run(runCtx, fn)
	}()
	return nil
}

// Shutdown rejects new work and cancels running work. With wait it blocks
// until every started function has returned.
func (e *Executor) Shutdown(wait bool) {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	if wait {
		e.wg.Wait()
	}
}

// Stats returns the executor counters.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Name:      e.name,
		Workers:   e.workers,
		Active:    e.active.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
	}
}
