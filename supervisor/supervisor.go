package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/metric"
)

// Operation is a single supervised unit of work. It must honor ctx.
type Operation func(ctx context.Context) (core.Result, error)

// Options configures a Supervisor.
type Options struct {
	Logger  logging.Logger
	Metrics *metric.Metrics
}

// TaskInfo describes a live task.
type TaskInfo struct {
	Name     string
	Started  time.Time
	Deadline time.Time // zero when the task has no deadline
}

type task struct {
	info   TaskInfo
	cancel context.CancelFunc
}

// Supervisor runs operations under timeout and retry policy.
type Supervisor struct {
	logger  logging.Logger
	metrics *metric.Metrics

	mu    sync.Mutex
	tasks map[string]*task
}

// New creates a Supervisor.
func New(optFns ...func(o *Options)) *Supervisor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Supervisor{
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tasks:   make(map[string]*task),
	}
}

// Live returns the live tasks sorted by name.
func (s *Supervisor) Live() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Running reports whether a task named name is live.
func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Cancel cancels the live task named name. It reports whether one existed.
func (s *Supervisor) Cancel(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if ok {
		t.cancel()
	}
	return ok
}

// Shutdown cancels every live task.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

func (s *Supervisor) register(name string, t *task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("%w: %s", core.ErrTaskRunning, name)
	}
	s.tasks[name] = t
	s.metrics.TaskStarted()
	return nil
}

func (s *Supervisor) unregister(name string, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[name]; ok && cur == t {
		delete(s.tasks, name)
		s.metrics.TaskFinished()
	}
}

type outcome struct {
	res core.Result
	err error
}

// RunWithTimeout runs op registered under name and waits at most timeout.
// A timeout of zero or less waits for completion. On timeout the operation's
// context is cancelled and a *core.TimeoutError is returned. Otherwise the
// operation's result and error are returned unchanged. Panics are recovered
// as *core.ExecutionError.
func (s *Supervisor) RunWithTimeout(ctx context.Context, name string, op Operation, timeout time.Duration) (core.Result, error) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	t := &task{info: TaskInfo{Name: name, Started: start}, cancel: cancel}
	if deadline, ok := runCtx.Deadline(); ok {
		t.info.Deadline = deadline
	}
	if err := s.register(name, t); err != nil {
		return nil, err
	}
	defer s.unregister(name, t)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &core.ExecutionError{IntentType: name, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		res, err := op(runCtx)
		done <- outcome{res: res, err: err}
	}()

	if o, ok := await(done, runCtx.Done()); ok {
		if o.err != nil && s.timedOut(ctx, runCtx, timeout) {
			return nil, s.timeout(name, timeout, start)
		}
		return o.res, o.err
	}
	if s.timedOut(ctx, runCtx, timeout) {
		return nil, s.timeout(name, timeout, start)
	}
	s.logger.Debug("task cancelled", "name", name, "elapsed", time.Since(start))
	return nil, ctx.Err()
}

// await waits for the operation or stop. An outcome that is ready when stop
// fires wins, so a result delivered at the deadline is not lost.
func await(done <-chan outcome, stop <-chan struct{}) (outcome, bool) {
	select {
	case o := <-done:
		return o, true
	case <-stop:
	}
	select {
	case o := <-done:
		return o, true
	default:
		return outcome{}, false
	}
}

func (s *Supervisor) timedOut(parent, runCtx context.Context, timeout time.Duration) bool {
	return timeout > 0 && parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)
}

func (s *Supervisor) timeout(name string, timeout time.Duration, start time.Time) error {
	s.metrics.TaskTimedOut()
	s.logger.Warn("task timed out", "name", name, "timeout", timeout, "elapsed", time.Since(start))
	return &core.TimeoutError{Name: name, Timeout: timeout}
}

// RunWithRetry invokes op up to policy.Attempts times, waiting the policy's
// delay between failed attempts. Each attempt is registered under name and
// removed before the next one starts. After the final failure a
// *core.RetryExhaustedError wrapping the last error is returned. Cancellation
// of ctx stops retrying and returns ctx's error. Validation failures and
// errors marked Permanent are returned without retrying.
func (s *Supervisor) RunWithRetry(ctx context.Context, name string, op Operation, policy RetryPolicy) (core.Result, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := s.RunWithTimeout(ctx, name, op, policy.AttemptTimeout)
		if err == nil {
			if attempt > 1 {
				s.logger.Info("task succeeded after retry", "name", name, "attempt", attempt)
			}
			return res, nil
		}
		last = err

		if errors.Is(err, core.ErrTaskRunning) {
			return nil, err
		}
		s.logger.Warn("task failed attempt", "name", name, "attempt", attempt, "attempts", attempts, "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if IsPermanent(err) || errors.Is(err, core.ErrValidation) {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		s.metrics.TaskRetried()
		if d := policy.DelayAfter(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	s.logger.Error("task exceeded retry limit, giving up", "name", name, "attempts", attempts, "error", last)
	return nil, &core.RetryExhaustedError{Name: name, Attempts: attempts, Last: last}
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so RunWithRetry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
