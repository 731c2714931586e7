package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ochoaughini/Cognition-Lattice/bus"
	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/memory"
)

// ErrAlreadyRunning is returned by Start and Run on an engine that is
// already processing intents.
var ErrAlreadyRunning = errors.New("engine already running")

// Dispatcher routes one intent to its handler and always yields a result.
// *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent core.Intent) core.Result
}

// Config defines the tuning parameters of the intake loop.
//
// The loop polls the broker for batches, passes each intent through the
// intake limiter and then hands it to a bounded worker group:
//
//	broker ──ReceiveIntents──▶ rate limiter ──▶ workers (MaxConcurrent) ──▶ Dispatch
//	                                                    │
//	          PublishResponse / AcknowledgeIntent ◀─────┘
//
// Example:
//
//	cfg := engine.Config{
//	    MaxConcurrent: 32,
//	    PollTimeout:   500 * time.Millisecond,
//	    IntakeRate:    100, // intents per second
//	    IntakeBurst:   20,
//	}
type Config struct {
	// MaxConcurrent bounds the intents dispatched at the same time. The
	// intake loop stops pulling from the broker while every worker is busy,
	// which leaves the backlog with the broker instead of in memory.
	MaxConcurrent int

	// PollTimeout is the idle window handed to Broker.ReceiveIntents. It is
	// also how quickly the loop notices cancellation when the broker is idle.
	PollTimeout time.Duration

	// IntakeRate limits accepted intents per second. Zero disables the limit.
	IntakeRate float64

	// IntakeBurst is the limiter bucket size. Defaults to MaxConcurrent.
	IntakeBurst int

	// ScheduleTick is how often cron schedules are evaluated. Schedules fire
	// at most once per matching minute regardless of the tick.
	ScheduleTick time.Duration

	// MemoryCleanup is the janitor interval for Options.Memory. Zero
	// disables the janitor.
	MemoryCleanup time.Duration

	// ResponseTTL is how long uncollected results stay in the default
	// ResponseStore. Zero uses DefaultResponseStoreOptions.TTL.
	ResponseTTL time.Duration

	// ResponseSweep is how often expired results are dropped from the
	// ResponseStore. Zero disables the sweep.
	ResponseSweep time.Duration

	// BrokerURL is resolved by Start when CheckBroker is set.
	BrokerURL   string
	CheckBroker bool
}

// DefaultConfig provides the defaults applied by New.
//
//   - MaxConcurrent: 16
//   - PollTimeout: 1s
//   - IntakeRate: unlimited
//   - ScheduleTick: 15s
//   - MemoryCleanup: 1m
//   - ResponseSweep: 1m
var DefaultConfig = Config{
	MaxConcurrent: 16,
	PollTimeout:   time.Second,
	ScheduleTick:  15 * time.Second,
	MemoryCleanup: time.Minute,
	ResponseSweep: time.Minute,
}

// Options configures an Engine using the functional options pattern.
//
// Only the broker and the dispatcher are required; they are passed to New
// directly. Everything else has a working default or is switched off when
// left empty:
//
//	eng := engine.New(brk, disp, func(o *engine.Options) {
//	    o.Config.MaxConcurrent = 8
//	    o.Bus = b                 // enables Mount
//	    o.Memory = store          // enables the janitor
//	    o.Schedules = schedules   // enables cron submission
//	    o.Logger = logger
//	})
type Options struct {
	// Config contains the loop parameters. Defaults to DefaultConfig.
	Config Config

	// Bus hosts mounted bus agents. Mount fails without one.
	Bus *bus.Bus

	// Responses receives every result the loop produces. A fresh store is
	// created when nil.
	Responses *ResponseStore

	// Memory is swept for expired entries while the engine runs.
	Memory memory.Store

	// Schedules are cron triggered intent templates.
	Schedules []Schedule

	// Logger defaults to a no-op logger.
	Logger logging.Logger

	// Now is the clock used for schedules. Defaults to time.Now.
	Now func() time.Time
}

// Engine is the process level orchestrator.
//
// It owns the loop that moves intents from the broker to the dispatcher and
// results back to the broker, keeps a ResponseStore of terminal results for
// polling callers, serves bus agents mounted on the in-process bus, and
// submits cron scheduled intents.
//
// Concurrency model:
//   - One intake goroutine pulls batches from the broker.
//   - Up to Config.MaxConcurrent dispatch goroutines run at once.
//   - One goroutine per mounted bus agent handles its messages in order.
//   - Schedules, the memory janitor and the response sweep run in their own
//     goroutines.
//
// Intents accepted before Stop finish with a context that ignores the stop
// signal, so every accepted intent is answered and acknowledged. Handler
// timeouts still apply through the dispatcher.
type Engine struct {
	broker     core.Broker
	dispatcher Dispatcher
	bus        *bus.Bus
	responses  *ResponseStore
	limiter    *rate.Limiter
	opts       Options
	logger     logging.Logger

	mu       sync.Mutex
	agents   []BusAgent
	running  bool
	runCtx   context.Context
	agentWG  sync.WaitGroup
	cancel   context.CancelFunc
	stopped  chan struct{}
	stopErr  error
	accepted int64
}

// New creates an Engine reading from b and routing through d.
func New(b core.Broker, d Dispatcher, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.MaxConcurrent < 1 {
		opts.Config.MaxConcurrent = 1
	}
	if opts.Config.PollTimeout <= 0 {
		opts.Config.PollTimeout = DefaultConfig.PollTimeout
	}
	if opts.Config.ScheduleTick <= 0 {
		opts.Config.ScheduleTick = DefaultConfig.ScheduleTick
	}
	if opts.Responses == nil {
		opts.Responses = NewResponseStore(func(o *ResponseStoreOptions) {
			if opts.Config.ResponseTTL > 0 {
				o.TTL = opts.Config.ResponseTTL
			}
		})
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	limit := rate.Inf
	burst := opts.Config.IntakeBurst
	if opts.Config.IntakeRate > 0 {
		limit = rate.Limit(opts.Config.IntakeRate)
		if burst < 1 {
			burst = opts.Config.MaxConcurrent
		}
	}

	return &Engine{
		broker:     b,
		dispatcher: d,
		bus:        opts.Bus,
		responses:  opts.Responses,
		limiter:    rate.NewLimiter(limit, burst),
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Responses returns the store that collects terminal results.
func (e *Engine) Responses() *ResponseStore { return e.responses }

// Broker returns the broker the engine reads from.
func (e *Engine) Broker() core.Broker { return e.broker }

// Running reports whether the intake loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Submit validates intent, assigns an intent_id when missing and sends it
// to the broker. It returns the intent_id under which the result will be
// stored.
//
// The caller's map is never modified.
func (e *Engine) Submit(ctx context.Context, intent core.Intent) (string, error) {
	if intent.Type() == "" {
		return "", &core.ValidationError{Field: core.KeyIntent, Reason: "is required"}
	}
	intent = intent.Clone()
	if intent.ID() == "" {
		intent[core.KeyIntentID] = core.NewID()
	}
	if err := e.broker.SendIntent(ctx, intent); err != nil {
		return "", fmt.Errorf("submit %s: %w", intent.Type(), err)
	}
	return intent.ID(), nil
}

// Start runs the engine in the background until Stop is called or ctx is
// cancelled.
//
// When Config.CheckBroker is set the broker host must resolve first; this
// mirrors the startup health check of a deployed node and fails fast on a
// misconfigured BROKER_URL.
func (e *Engine) Start(ctx context.Context) error {
	if e.opts.Config.CheckBroker {
		if err := CheckBroker(ctx, e.opts.Config.BrokerURL); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
	}

	e.mu.Lock()
	if e.running || e.stopped != nil {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.stopped = make(chan struct{})
	done := e.stopped
	e.mu.Unlock()

	ready := make(chan error, 1)
	go func() {
		err := e.run(runCtx, ready)
		e.mu.Lock()
		e.stopErr = err
		e.mu.Unlock()
		close(done)
	}()
	if err := <-ready; err != nil {
		cancel()
		<-done
		e.mu.Lock()
		e.stopped = nil
		e.mu.Unlock()
		return err
	}
	return nil
}

// Stop cancels a started engine and waits for in-flight intents to finish.
// Calling Stop on an engine that was never started is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.stopped
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.stopErr
	e.cancel, e.stopped, e.stopErr = nil, nil, nil
	return err
}

// Run processes intents until ctx is done. It returns nil on cancellation
// and an error when the broker stops or a bus agent cannot be subscribed.
func (e *Engine) Run(ctx context.Context) error {
	return e.run(ctx, nil)
}

func (e *Engine) run(parent context.Context, ready chan<- error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	notify := func(err error) {
		if ready != nil {
			ready <- err
			ready = nil
		}
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		notify(ErrAlreadyRunning)
		return ErrAlreadyRunning
	}
	e.running = true
	e.runCtx = ctx
	agents := append([]BusAgent(nil), e.agents...)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.runCtx = nil
		e.mu.Unlock()
		cancel()
		e.agentWG.Wait()
	}()

	for _, a := range agents {
		if err := e.startAgent(ctx, a); err != nil {
			notify(err)
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.intake(gctx) })
	if len(e.opts.Schedules) > 0 {
		g.Go(func() error { return e.runSchedules(gctx) })
	}
	if e.opts.Memory != nil && e.opts.Config.MemoryCleanup > 0 {
		g.Go(func() error {
			memory.RunJanitor(gctx, e.opts.Memory, e.opts.Config.MemoryCleanup, e.logger)
			return nil
		})
	}

	if e.opts.Config.ResponseSweep > 0 {
		g.Go(func() error {
			e.sweepResponses(gctx, e.opts.Config.ResponseSweep)
			return nil
		})
	}

	e.logger.Info("engine started",
		"max_concurrent", e.opts.Config.MaxConcurrent,
		"bus_agents", len(agents),
		"schedules", len(e.opts.Schedules),
	)
	notify(nil)

	err := g.Wait()
	e.logger.Info("engine stopped", "error", err)
	return err
}

func (e *Engine) startAgent(ctx context.Context, a BusAgent) error {
	sub, err := e.bus.Subscribe(ctx, a.Patterns...)
	if err != nil {
		return fmt.Errorf("mount bus agent %q: %w", a.Name, err)
	}
	e.agentWG.Add(1)
	go func() {
		defer e.agentWG.Done()
		e.serveAgent(ctx, a, sub)
	}()
	return nil
}

func (e *Engine) intake(ctx context.Context) error {
	var workers errgroup.Group
	workers.SetLimit(e.opts.Config.MaxConcurrent)
	defer func() { _ = workers.Wait() }()

	for ctx.Err() == nil {
		batch, err := e.broker.ReceiveIntents(ctx, e.opts.Config.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, core.ErrNotRunning) {
				return fmt.Errorf("receive intents: %w", err)
			}
			e.logger.Warn("receive intents failed", "error", err)
			if !sleep(ctx, e.opts.Config.PollTimeout) {
				return nil
			}
			continue
		}
		// A received batch is already in flight at the broker; it is
		// answered in full even when ctx is cancelled mid batch.
		batchCtx := context.WithoutCancel(ctx)
		for _, intent := range batch {
			if err := e.limiter.Wait(batchCtx); err != nil {
				e.logger.Warn("intake limiter failed", "intent_id", intent.ID(), "error", err)
			}
			workers.Go(func() error {
				e.process(batchCtx, intent)
				return nil
			})
		}
	}
	return nil
}

// ProcessOnce receives one batch from the broker, processes it and returns
// the results in batch order. It is the synchronous form of the intake loop
// used by one-shot commands and tests.
func (e *Engine) ProcessOnce(ctx context.Context) ([]core.Result, error) {
	batch, err := e.broker.ReceiveIntents(ctx, e.opts.Config.PollTimeout)
	if err != nil {
		return nil, fmt.Errorf("receive intents: %w", err)
	}
	results := make([]core.Result, len(batch))
	var workers errgroup.Group
	workers.SetLimit(e.opts.Config.MaxConcurrent)
	for i, intent := range batch {
		workers.Go(func() error {
			results[i] = e.process(ctx, intent)
			return nil
		})
	}
	_ = workers.Wait()
	return results, nil
}

func (e *Engine) process(ctx context.Context, intent core.Intent) core.Result {
	res := e.dispatcher.Dispatch(ctx, intent)
	e.responses.Add(res)
	if err := e.broker.PublishResponse(ctx, res); err != nil {
		e.logger.Warn("publish response failed", "intent_id", res.IntentID(), "error", err)
	}
	if intent.ID() != "" {
		if err := e.broker.AcknowledgeIntent(ctx, intent); err != nil {
			e.logger.Warn("acknowledge intent failed", "intent_id", intent.ID(), "error", err)
		}
	}
	e.mu.Lock()
	e.accepted++
	e.mu.Unlock()
	return res
}

// Processed returns how many intents the engine has answered.
func (e *Engine) Processed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accepted
}

func (e *Engine) sweepResponses(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.responses.Sweep(); n > 0 {
				e.logger.Debug("expired uncollected results", "count", n)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
