// Package lattice is the top level entry point of the intent orchestration
// core. It builds every component from a config.Config and wires them
// together:
//
//  1. Create a Lattice via New (defaults are safe for local development)
//  2. Register handlers or whole agents, and mount bus agents
//  3. Start the engine, then Dispatch intents directly, RunWorkflow for SAGA
//     style sequences, Submit through the broker, or Request over the bus
//
// Every component stays reachable through an accessor so applications can
// drop down a level when the facade is too coarse.
package lattice

import (
	"context"
	"errors"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/ochoaughini/Cognition-Lattice/agent"
	"github.com/ochoaughini/Cognition-Lattice/broker"
	"github.com/ochoaughini/Cognition-Lattice/bus"
	"github.com/ochoaughini/Cognition-Lattice/config"
	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/dispatch"
	"github.com/ochoaughini/Cognition-Lattice/engine"
	"github.com/ochoaughini/Cognition-Lattice/gateway"
	"github.com/ochoaughini/Cognition-Lattice/harmonizer"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/memory"
	"github.com/ochoaughini/Cognition-Lattice/metric"
	"github.com/ochoaughini/Cognition-Lattice/model"
	"github.com/ochoaughini/Cognition-Lattice/model/anthropic"
	"github.com/ochoaughini/Cognition-Lattice/model/openai"
	"github.com/ochoaughini/Cognition-Lattice/registry"
	"github.com/ochoaughini/Cognition-Lattice/resource"
	"github.com/ochoaughini/Cognition-Lattice/supervisor"
)

// MockModel is the name of the offline model that is always registered.
const MockModel = "mock"

// EchoPattern is the bus pattern the built-in echo agent listens on.
const EchoPattern = "echo.*"

// Options configures a Lattice.
type Options struct {
	// Config is the process configuration. Defaults to config.Default().
	Config *config.Config

	// Broker replaces the broker selected by Config.Broker. A broker passed
	// here is still closed by Stop.
	Broker core.Broker

	// Memory replaces the store selected by Config.Memory.
	Memory memory.Store

	// Detectors replaces resource detection. Tests use a
	// resource.StaticDetector to avoid probing the host.
	Detectors []resource.Detector

	// Models replaces the registry built from Config.Models.
	Models *model.Registry

	// DisableBuiltins skips the echo, plan, act, verify, memory and predict
	// agents and the bus echo agent.
	DisableBuiltins bool

	// Logger defaults to the logger described by Config.Log.
	Logger logging.Logger
}

// Lattice aggregates the orchestration components.
type Lattice struct {
	cfg    *config.Config
	logger logging.Logger

	metrics    *metric.Registry
	supervisor *supervisor.Supervisor
	bus        *bus.Bus
	resources  *resource.Manager
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	harmonizer *harmonizer.Harmonizer
	broker     core.Broker
	memory     memory.Store
	models     *model.Registry
	engine     *engine.Engine
	gateway    *gateway.Server
}

// New builds a Lattice. The context bounds broker connection only.
func New(ctx context.Context, optFns ...func(o *Options)) (*Lattice, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = cfg.Logger()
	}

	l := &Lattice{cfg: cfg, logger: opts.Logger}

	var m *metric.Metrics
	if cfg.Metrics.Enabled {
		l.metrics = metric.NewRegistry()
		m = l.metrics.Metrics()
	}

	l.supervisor = supervisor.New(func(o *supervisor.Options) {
		o.Logger = l.logger
		o.Metrics = m
	})
	l.bus = bus.New(func(o *bus.Options) {
		o.QueueSize = cfg.Bus.QueueSize
		o.Logger = l.logger
		o.Metrics = m
	})
	l.resources = resource.NewManager(func(o *resource.Options) {
		if opts.Detectors != nil {
			o.Detectors = opts.Detectors
		}
		o.IOWorkers = cfg.Resource.IOWorkers
		o.CPUWorkers = cfg.Resource.CPUWorkers
		o.Logger = l.logger
		o.Metrics = m
	})
	l.registry = registry.New(func(o *registry.Options) {
		o.Logger = l.logger
	})
	l.dispatcher = dispatch.New(l.registry, l.supervisor, func(o *dispatch.Options) {
		o.Timeout = cfg.Runtime.TaskTimeout
		o.Retry = cfg.RetryPolicy()
		o.Logger = l.logger
		o.Metrics = m
	})
	l.harmonizer = harmonizer.New(l.registry, func(o *harmonizer.Options) {
		o.StepTimeout = cfg.Runtime.StepTimeout
		o.Supervisor = l.supervisor
		o.Logger = l.logger
		o.Metrics = m
	})
	if err := l.registry.RegisterHandler(harmonizer.IntentWorkflow, l.harmonizer.Handler()); err != nil {
		return nil, err
	}

	var err error
	if l.memory = opts.Memory; l.memory == nil {
		if l.memory, err = openMemory(cfg.Memory); err != nil {
			return nil, err
		}
	}
	if l.models = opts.Models; l.models == nil {
		if l.models, err = buildModels(cfg.Models); err != nil {
			return nil, errors.Join(err, l.memory.Close())
		}
	}

	if l.broker = opts.Broker; l.broker == nil {
		l.broker, err = broker.Open(ctx, broker.Options{
			Kind:      cfg.Broker.Kind,
			URL:       cfg.Broker.URL,
			QueueSize: cfg.Broker.QueueSize,
			Logger:    l.logger,
		})
		if err != nil {
			return nil, errors.Join(err, l.memory.Close())
		}
	}

	schedules := make([]engine.Schedule, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		schedules = append(schedules, engine.Schedule{Name: s.Name, Cron: s.Cron, Intent: core.Intent(s.Intent)})
	}
	l.engine = engine.New(l.broker, l.dispatcher, func(o *engine.Options) {
		o.Config.MaxConcurrent = cfg.Engine.MaxConcurrent
		o.Config.PollTimeout = cfg.Engine.PollTimeout
		o.Config.IntakeRate = cfg.Engine.IntakeRate
		o.Config.IntakeBurst = cfg.Engine.IntakeBurst
		o.Config.MemoryCleanup = cfg.Memory.CleanupInterval
		o.Config.BrokerURL = cfg.Broker.URL
		o.Config.CheckBroker = cfg.Engine.CheckBroker
		o.Config.ResponseTTL = cfg.Engine.ResponseTTL
		o.Bus = l.bus
		o.Memory = l.memory
		o.Schedules = schedules
		o.Logger = l.logger
	})

	if !opts.DisableBuiltins {
		if err := l.registerBuiltins(); err != nil {
			return nil, errors.Join(err, l.Stop())
		}
	}

	l.gateway = gateway.New(l.engine, l.engine.Responses(), func(o *gateway.Options) {
		o.Addr = cfg.Gateway.Addr
		o.WaitTimeout = cfg.Gateway.WaitTimeout
		o.APIKey = cfg.Gateway.APIKey
		if len(cfg.Gateway.AllowedOrigins) > 0 {
			o.AllowedOrigins = cfg.Gateway.AllowedOrigins
		}
		if l.metrics != nil {
			o.Metrics = l.metrics.Handler()
		}
		o.Health = l.Health
		o.Logger = l.logger
	})

	return l, nil
}

func (l *Lattice) registerBuiltins() error {
	if err := agent.RegisterBuiltins(l.registry); err != nil {
		return err
	}
	if err := l.registry.RegisterAgent(core.Singleton(agent.NewMemory(l.memory))); err != nil {
		return err
	}
	predict := agent.NewPredict(l.models, l.resources, func(o *agent.PredictOptions) {
		o.Logger = l.logger
	})
	if err := l.registry.RegisterAgent(core.Singleton(predict)); err != nil {
		return err
	}
	return l.engine.Mount(engine.BusAgent{
		Name:     agent.BusEchoName,
		Patterns: []string{EchoPattern},
		Handle:   agent.BusEcho,
	})
}

func openMemory(cfg config.MemoryConfig) (memory.Store, error) {
	if cfg.Path == "" {
		return memory.NewInMemoryStore(), nil
	}
	store, err := memory.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	return store, nil
}

func buildModels(cfg config.ModelsConfig) (*model.Registry, error) {
	models := model.NewRegistry()
	if cfg.OpenAI.Enabled {
		c := openai.NewClient(func(o *openai.Options) {
			if cfg.OpenAI.Model != "" {
				o.Model = cfg.OpenAI.Model
			}
			o.APIKey = cfg.OpenAI.APIKey
			o.BaseURL = cfg.OpenAI.BaseURL
		})
		if err := models.Register("openai", c); err != nil {
			return nil, err
		}
	}
	if cfg.Anthropic.Enabled {
		c := anthropic.NewClient(func(o *anthropic.Options) {
			if cfg.Anthropic.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Anthropic.Model)
			}
			o.APIKey = cfg.Anthropic.APIKey
			o.BaseURL = cfg.Anthropic.BaseURL
		})
		if err := models.Register("anthropic", c); err != nil {
			return nil, err
		}
	}
	if err := models.Register(MockModel, model.NewMockClient(MockModel)); err != nil {
		return nil, err
	}
	if cfg.Default != "" {
		if err := models.SetDefault(cfg.Default); err != nil {
			return nil, err
		}
	}
	return models, nil
}

// Register maps intentType to a handler factory.
func (l *Lattice) Register(intentType string, factory core.Factory) error {
	return l.registry.Register(intentType, factory)
}

// RegisterAgent registers factory under every intent type its handler
// declares.
func (l *Lattice) RegisterAgent(factory core.Factory) error {
	return l.registry.RegisterAgent(factory)
}

// Dispatch runs one intent in process and returns its result.
func (l *Lattice) Dispatch(ctx context.Context, intent core.Intent) core.Result {
	return l.dispatcher.Dispatch(ctx, intent)
}

// RunWorkflow orchestrates intent as a compensating sequence and returns
// every step result.
func (l *Lattice) RunWorkflow(ctx context.Context, intent core.Intent) []core.Result {
	return l.harmonizer.Run(ctx, intent)
}

// ExecuteWorkflow runs wf with input and returns the detailed run.
func (l *Lattice) ExecuteWorkflow(ctx context.Context, wf *harmonizer.Workflow, input core.Intent) *harmonizer.Run {
	return l.harmonizer.Execute(ctx, wf, input)
}

// Submit queues intent on the broker and returns its intent_id.
func (l *Lattice) Submit(ctx context.Context, intent core.Intent) (string, error) {
	return l.engine.Submit(ctx, intent)
}

// Request publishes payload on topic and waits for the reply.
func (l *Lattice) Request(ctx context.Context, topic string, payload map[string]any, timeout time.Duration) (core.Message, error) {
	return l.bus.Request(ctx, topic, payload, timeout)
}

// Mount adds a bus agent.
func (l *Lattice) Mount(a engine.BusAgent) error {
	return l.engine.Mount(a)
}

// Start detects resources and starts the engine.
func (l *Lattice) Start(ctx context.Context) error {
	if err := l.resources.Initialize(ctx); err != nil {
		return err
	}
	return l.engine.Start(ctx)
}

// Serve runs the gateway until ctx is done. Start must be called first.
func (l *Lattice) Serve(ctx context.Context) error {
	return l.gateway.ListenAndServe(ctx)
}

// Health reports whether the engine is accepting intents.
func (l *Lattice) Health(context.Context) error {
	if !l.engine.Running() {
		return core.ErrNotRunning
	}
	return nil
}

// Stop shuts every component down in reverse dependency order. It is safe to
// call more than once.
func (l *Lattice) Stop() error {
	errs := []error{l.engine.Stop()}
	l.supervisor.Shutdown()
	errs = append(errs, l.bus.Close())
	l.resources.Cleanup()
	errs = append(errs, l.broker.Close(), l.memory.Close())
	return errors.Join(errs...)
}

func (l *Lattice) Config() *config.Config             { return l.cfg }
func (l *Lattice) Bus() *bus.Bus                      { return l.bus }
func (l *Lattice) Broker() core.Broker                { return l.broker }
func (l *Lattice) Engine() *engine.Engine             { return l.engine }
func (l *Lattice) Gateway() *gateway.Server           { return l.gateway }
func (l *Lattice) Registry() *registry.Registry       { return l.registry }
func (l *Lattice) Dispatcher() *dispatch.Dispatcher   { return l.dispatcher }
func (l *Lattice) Harmonizer() *harmonizer.Harmonizer { return l.harmonizer }
func (l *Lattice) Supervisor() *supervisor.Supervisor { return l.supervisor }
func (l *Lattice) Resources() *resource.Manager       { return l.resources }
func (l *Lattice) Memory() memory.Store               { return l.memory }
func (l *Lattice) Models() *model.Registry            { return l.models }

// Metrics returns the Prometheus registry, or nil when metrics are disabled.
func (l *Lattice) Metrics() *metric.Registry { return l.metrics }
