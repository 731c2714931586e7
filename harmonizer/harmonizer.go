package harmonizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/metric"
	"github.com/ochoaughini/Cognition-Lattice/supervisor"
)

// State is the lifecycle position of a run.
type State string

// Run states.
const (
	StatePending      State = "PENDING"
	StateRunning      State = "RUNNING"
	StateCompensating State = "COMPENSATING"
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
)

// Result keys added by the harmonizer.
const (
	KeyWorkflowID = "workflow_id"
	KeyRolledBack = "rolled_back"
	KeyStep       = "step"
	KeyResults    = "results"
)

// Resolver yields handlers for step intent types.
type Resolver interface {
	Lookup(intentType string) (core.Handler, error)
}

// Lister is implemented by resolvers that can enumerate their types. The
// legacy mode uses it when no handlers are configured.
type Lister interface {
	Types() []string
}

// Options configures a Harmonizer.
type Options struct {
	// StepTimeout bounds each step. Zero waits for completion. A step's own
	// Timeout takes precedence.
	StepTimeout time.Duration

	// Handlers is the ordered handler list of the legacy mode. When empty the
	// resolver's sorted types are used.
	Handlers []core.Handler

	// Supervisor runs each step. Defaults to a private one.
	Supervisor *supervisor.Supervisor

	Logger  logging.Logger
	Metrics *metric.Metrics
}

// Harmonizer runs workflows.
type Harmonizer struct {
	resolver Resolver
	opts     Options
	sup      *supervisor.Supervisor
	logger   logging.Logger
	metrics  *metric.Metrics
}

// New creates a Harmonizer.
func New(resolver Resolver, optFns ...func(o *Options)) *Harmonizer {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	sup := opts.Supervisor
	if sup == nil {
		sup = supervisor.New(func(o *supervisor.Options) {
			o.Logger = opts.Logger
			o.Metrics = opts.Metrics
		})
	}
	return &Harmonizer{resolver: resolver, opts: opts, sup: sup, logger: opts.Logger, metrics: opts.Metrics}
}

// Run is the record of one workflow execution.
type Run struct {
	ID       string
	Workflow string

	mu    sync.Mutex
	state State

	// Results holds one entry per executed step plus, on failure, a final
	// error result.
	Results []core.Result
	// Completed lists the step types that committed, in order.
	Completed []string
	// RolledBack lists the step types whose rollback succeeded, in the
	// order they were compensated.
	RolledBack []string
	// FailedStep is the index of the failing step, or -1.
	FailedStep int
	// Err is the failure that halted the run.
	Err error

	Started  time.Time
	Finished time.Time
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Final returns the last result, or nil for a run without results.
func (r *Run) Final() core.Result {
	if len(r.Results) == 0 {
		return nil
	}
	return r.Results[len(r.Results)-1]
}

type stage struct {
	intentType string
	handler    core.Handler
	intent     core.Intent
	timeout    time.Duration
}

// Run executes intent and returns the accumulated results. A "workflow" list
// in the intent selects workflow mode; otherwise the legacy mode runs every
// configured handler against intent. Run never fails: problems surface as a
// final error result.
func (h *Harmonizer) Run(ctx context.Context, intent core.Intent) []core.Result {
	return h.RunDetailed(ctx, intent).Results
}

// RunDetailed is Run returning the full run record.
func (h *Harmonizer) RunDetailed(ctx context.Context, intent core.Intent) *Run {
	wf, ok, err := FromIntent(intent)
	switch {
	case err != nil:
		run := h.newRun("")
		h.fail(run, -1, "", err)
		h.finish(run)
		return run
	case ok:
		return h.Execute(ctx, wf, intent)
	default:
		return h.legacy(ctx, intent)
	}
}

// Execute runs wf. Every step type is resolved before the first step runs.
// input supplies the workflow id (its intent_id, when set) and args passed
// to steps that carry none of their own.
func (h *Harmonizer) Execute(ctx context.Context, wf *Workflow, input core.Intent) *Run {
	run := h.newRun(input.ID())
	if wf != nil {
		run.Workflow = wf.Name
	}
	if err := wf.Validate(); err != nil {
		h.fail(run, -1, "", err)
		h.finish(run)
		return run
	}

	stages := make([]stage, 0, len(wf.Steps))
	for i, step := range wf.Steps {
		handler, err := h.lookup(step.Intent)
		if err != nil {
			h.fail(run, i, step.Intent, err)
			h.finish(run)
			return run
		}
		stages = append(stages, stage{
			intentType: step.Intent,
			handler:    handler,
			intent:     stepIntent(run.ID, i, step, input),
			timeout:    step.Timeout,
		})
	}
	h.execute(ctx, run, stages, true)
	return run
}

func (h *Harmonizer) legacy(ctx context.Context, input core.Intent) *Run {
	run := h.newRun(input.ID())
	handlers := h.opts.Handlers
	var types []string
	if len(handlers) == 0 {
		if lister, ok := h.resolver.(Lister); ok {
			for _, t := range lister.Types() {
				// The harmonizer's own handler is never a legacy stage.
				if t != IntentWorkflow {
					types = append(types, t)
				}
			}
		}
		for _, t := range types {
			handler, err := h.lookup(t)
			if err != nil {
				h.fail(run, -1, t, err)
				h.finish(run)
				return run
			}
			handlers = append(handlers, handler)
		}
	}

	stages := make([]stage, len(handlers))
	for i, handler := range handlers {
		name := fmt.Sprintf("handler[%d]", i)
		if i < len(types) {
			name = types[i]
		} else if typer, ok := handler.(core.IntentTyper); ok && len(typer.IntentTypes()) > 0 {
			name = typer.IntentTypes()[0]
		}
		stages[i] = stage{intentType: name, handler: handler, intent: input}
	}
	h.execute(ctx, run, stages, false)
	return run
}

func (h *Harmonizer) lookup(intentType string) (core.Handler, error) {
	if h.resolver == nil {
		return nil, &core.DispatchError{IntentType: intentType}
	}
	return h.resolver.Lookup(intentType)
}

func (h *Harmonizer) newRun(id string) *Run {
	if id == "" {
		id = core.NewID()
	}
	return &Run{ID: id, state: StatePending, FailedStep: -1, Started: time.Now()}
}

func stepIntent(runID string, i int, step Step, input core.Intent) core.Intent {
	in := core.Intent(core.CloneMap(step.Payload))
	if in == nil {
		in = core.Intent{}
	}
	in[core.KeyIntent] = step.Intent
	in[core.KeyIntentID] = fmt.Sprintf("%s.%d", runID, i+1)
	in[KeyWorkflowID] = runID
	in[KeyStep] = i + 1
	if _, ok := in[core.KeyArgs]; !ok {
		if args, ok := input[core.KeyArgs]; ok {
			in[core.KeyArgs] = core.CloneValue(args)
		}
	}
	return in
}

func (h *Harmonizer) execute(ctx context.Context, run *Run, stages []stage, workflowMode bool) {
	run.setState(StateRunning)
	var done []stage

	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			h.halt(ctx, run, done, i, st.intentType, err, workflowMode)
			return
		}
		res, err := h.runStage(ctx, run, i, st)
		if err != nil {
			h.halt(ctx, run, done, i, st.intentType, err, workflowMode)
			return
		}
		run.Results = append(run.Results, res)
		if res.IsError() {
			msg := res.Message()
			if msg == "" {
				msg = fmt.Sprintf("step %s returned an error status", st.intentType)
			}
			h.halt(ctx, run, done, i, st.intentType, &core.ExecutionError{IntentType: st.intentType, Err: errors.New(msg)}, workflowMode)
			return
		}
		done = append(done, st)
		run.Completed = append(run.Completed, st.intentType)
	}

	run.setState(StateCompleted)
	h.finish(run)
}

func (h *Harmonizer) runStage(ctx context.Context, run *Run, i int, st stage) (core.Result, error) {
	timeout := st.timeout
	if timeout <= 0 {
		timeout = h.opts.StepTimeout
	}
	name := fmt.Sprintf("%s/%d:%s", run.ID, i+1, st.intentType)
	res, err := h.sup.RunWithTimeout(ctx, name, func(ctx context.Context) (core.Result, error) {
		return st.handler.Execute(ctx, st.intent)
	}, timeout)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = core.Result{core.KeyStatus: core.StatusOK}
	}
	return res, nil
}

func (h *Harmonizer) halt(ctx context.Context, run *Run, done []stage, i int, intentType string, cause error, workflowMode bool) {
	run.setState(StateCompensating)
	run.RolledBack = h.compensate(context.WithoutCancel(ctx), done)
	if !workflowMode {
		intentType = ""
	}
	h.fail(run, i, intentType, cause)
	h.finish(run)
}

// compensate rolls back done in reverse order and returns the types whose
// rollback succeeded.
func (h *Harmonizer) compensate(ctx context.Context, done []stage) []string {
	var rolled []string
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		c, ok := st.handler.(core.Compensator)
		if !ok {
			continue
		}
		if err := rollback(ctx, c, st.intent); err != nil {
			h.logger.Error("rollback failed", "step", st.intentType, "error", err)
			continue
		}
		h.logger.Debug("step rolled back", "step", st.intentType)
		rolled = append(rolled, st.intentType)
	}
	return rolled
}

func rollback(ctx context.Context, c core.Compensator, intent core.Intent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.Rollback(ctx, intent)
}

func (h *Harmonizer) fail(run *Run, i int, intentType string, cause error) {
	run.FailedStep = i
	run.Err = cause
	final := core.ErrorResult(cause)
	final[KeyWorkflowID] = run.ID
	if intentType != "" {
		final[core.KeyIntent] = intentType
	}
	rolled := make([]any, len(run.RolledBack))
	for j, t := range run.RolledBack {
		rolled[j] = t
	}
	final[KeyRolledBack] = rolled
	run.Results = append(run.Results, final)
	run.setState(StateFailed)
}

type workflowLogger interface {
	LogWorkflow(workflow string, steps int, dur time.Duration, success bool, err error)
}

func (h *Harmonizer) finish(run *Run) {
	run.Finished = time.Now()
	state := run.State()
	h.metrics.RecordWorkflow(string(state), len(run.RolledBack))

	name := run.Workflow
	if name == "" {
		name = run.ID
	}
	dur := run.Finished.Sub(run.Started)
	success := state == StateCompleted
	if wl, ok := h.logger.(workflowLogger); ok {
		wl.LogWorkflow(name, len(run.Completed), dur, success, run.Err)
		return
	}
	if success {
		h.logger.Info("workflow completed", "workflow", name, "steps", len(run.Completed), "duration", dur)
		return
	}
	h.logger.Warn("workflow failed", "workflow", name, "steps", len(run.Completed), "failed_step", run.FailedStep,
		"rolled_back", run.RolledBack, "error", run.Err)
}
