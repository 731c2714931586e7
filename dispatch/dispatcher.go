package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/metric"
	"github.com/ochoaughini/Cognition-Lattice/supervisor"
)

// Resolver yields the handler for an intent type. *registry.Registry
// implements it.
type Resolver interface {
	Lookup(intentType string) (core.Handler, error)
}

// Options configures a Dispatcher.
type Options struct {
	// Timeout bounds one handler attempt. Zero disables the deadline.
	Timeout time.Duration

	// Retry is applied when Retry.Attempts is greater than one. Its
	// AttemptTimeout defaults to Timeout.
	Retry supervisor.RetryPolicy

	Logger  logging.Logger
	Metrics *metric.Metrics
}

// Dispatcher resolves and runs intents.
type Dispatcher struct {
	resolver   Resolver
	supervisor *supervisor.Supervisor
	opts       Options
	hooks      *HookManager
	logger     logging.Logger
	metrics    *metric.Metrics
}

type dispatchLogger interface {
	LogDispatch(intentType, intentID string, dur time.Duration, success bool, err error)
}

// New creates a Dispatcher. A nil supervisor gets a private one.
func New(resolver Resolver, sup *supervisor.Supervisor, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Timeout: 30 * time.Second,
		Retry:   supervisor.RetryPolicy{Attempts: 1},
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Retry.AttemptTimeout == 0 {
		opts.Retry.AttemptTimeout = opts.Timeout
	}
	if sup == nil {
		sup = supervisor.New(func(o *supervisor.Options) {
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
		})
	}
	return &Dispatcher{
		resolver:   resolver,
		supervisor: sup,
		opts:       opts,
		hooks:      NewHookManager(),
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Hooks returns the hook manager.
func (d *Dispatcher) Hooks() *HookManager { return d.hooks }

// Supervisor returns the supervisor running handler invocations.
func (d *Dispatcher) Supervisor() *supervisor.Supervisor { return d.supervisor }

// Dispatch runs intent through its handler and returns the result. It never
// fails: every error becomes an error result. The returned result always
// carries intent_id and intent. An intent without an id is given one; the
// caller's map is not modified.
func (d *Dispatcher) Dispatch(ctx context.Context, intent core.Intent) core.Result {
	start := time.Now()
	if intent == nil {
		intent = core.Intent{}
	}
	intentType := intent.Type()
	if intent.ID() == "" {
		intent = intent.Clone()
		intent[core.KeyIntentID] = core.NewID()
	}
	id := intent.ID()

	res, err := d.dispatch(ctx, intent, intentType, id)
	if err != nil {
		res = core.ErrorResult(err)
	} else if res == nil {
		res = core.Result{core.KeyStatus: core.StatusOK}
	} else {
		res = core.Result(core.CloneMap(res))
		if res.Status() == "" {
			res[core.KeyStatus] = core.StatusOK
		}
	}
	res[core.KeyIntentID] = id
	res[core.KeyIntent] = intentType

	dur := time.Since(start)
	success := !res.IsError()
	if !success && err == nil {
		err = errors.New(res.Message())
	}

	hc := &HookContext{Type: HookAfterDispatch, Intent: intent, Result: res, Duration: dur, Metadata: map[string]any{}}
	if !success {
		hc.Err = err
	}
	if herr := d.hooks.Run(ctx, hc); herr != nil {
		d.logger.Warn("after dispatch hook failed", "intent", intentType, "intent_id", id, "error", herr)
	}
	if !success {
		hc.Type = HookOnError
		if herr := d.hooks.Run(ctx, hc); herr != nil {
			d.logger.Warn("error hook failed", "intent", intentType, "intent_id", id, "error", herr)
		}
	}

	d.metrics.RecordIntent(intentType, dur, success)
	d.logOutcome(intentType, id, dur, success, err)
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, intent core.Intent, intentType, id string) (core.Result, error) {
	if intentType == "" {
		return nil, &core.ValidationError{Field: core.KeyIntent, Reason: "is required"}
	}
	if d.resolver == nil {
		return nil, &core.DispatchError{IntentType: intentType}
	}
	h, err := d.resolver.Lookup(intentType)
	if err != nil {
		return nil, err
	}

	hc := &HookContext{Type: HookBeforeDispatch, Intent: intent, Metadata: map[string]any{}}
	if err := d.hooks.Run(ctx, hc); err != nil {
		return nil, fmt.Errorf("before dispatch: %w", err)
	}

	op := func(ctx context.Context) (core.Result, error) {
		res, err := h.Execute(ctx, intent)
		if err != nil {
			var ee *core.ExecutionError
			if errors.As(err, &ee) || errors.Is(err, core.ErrTimeout) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, &core.ExecutionError{IntentType: intentType, Err: err}
		}
		return res, nil
	}

	if d.opts.Retry.Attempts > 1 {
		return d.supervisor.RunWithRetry(ctx, id, op, d.opts.Retry)
	}
	return d.supervisor.RunWithTimeout(ctx, id, op, d.opts.Timeout)
}

func (d *Dispatcher) logOutcome(intentType, id string, dur time.Duration, success bool, err error) {
	if dl, ok := d.logger.(dispatchLogger); ok {
		dl.LogDispatch(intentType, id, dur, success, err)
		return
	}
	if success {
		d.logger.Debug("intent dispatched", "intent", intentType, "intent_id", id, "duration", dur)
		return
	}
	d.logger.Warn("intent dispatch failed", "intent", intentType, "intent_id", id, "duration", dur, "error", err)
}
