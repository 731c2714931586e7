package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ochoaughini/Cognition-Lattice/broker"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/supervisor"
)

// Config is the full process configuration.
type Config struct {
	Broker    BrokerConfig   `yaml:"broker"`
	Runtime   RuntimeConfig  `yaml:"runtime"`
	Engine    EngineConfig   `yaml:"engine"`
	Bus       BusConfig      `yaml:"bus"`
	Resource  ResourceConfig `yaml:"resource"`
	Gateway   GatewayConfig  `yaml:"gateway"`
	Memory    MemoryConfig   `yaml:"memory"`
	Models    ModelsConfig   `yaml:"models"`
	Log       LogConfig      `yaml:"log"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Schedules []Schedule     `yaml:"schedules"`
}

// BrokerConfig selects the intent transport.
type BrokerConfig struct {
	Kind      string `yaml:"kind" env:"MESSAGE_BROKER"`
	URL       string `yaml:"url" env:"BROKER_URL"`
	QueueSize int    `yaml:"queue_size" env:"LATTICE_BROKER_QUEUE_SIZE"`
}

// RuntimeConfig holds supervisor and harmonizer limits.
type RuntimeConfig struct {
	TaskTimeout  time.Duration `yaml:"task_timeout" env:"LATTICE_TASK_TIMEOUT"`
	TaskRetries  int           `yaml:"task_retries" env:"LATTICE_TASK_RETRIES"`
	RetryDelay   time.Duration `yaml:"retry_delay" env:"LATTICE_RETRY_DELAY"`
	RetryBackoff string        `yaml:"retry_backoff" env:"LATTICE_RETRY_BACKOFF"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"LATTICE_RETRY_MAX_DELAY"`
	StepTimeout  time.Duration `yaml:"step_timeout" env:"LATTICE_STEP_TIMEOUT"`
}

// EngineConfig tunes the broker intake loop.
type EngineConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" env:"LATTICE_MAX_CONCURRENT"`
	IntakeRate    float64       `yaml:"intake_rate" env:"LATTICE_INTAKE_RATE"`
	IntakeBurst   int           `yaml:"intake_burst" env:"LATTICE_INTAKE_BURST"`
	PollTimeout   time.Duration `yaml:"poll_timeout" env:"LATTICE_POLL_TIMEOUT"`
	CheckBroker   bool          `yaml:"check_broker" env:"LATTICE_CHECK_BROKER"`
	ResponseTTL   time.Duration `yaml:"response_ttl" env:"LATTICE_RESPONSE_TTL"`
}

// BusConfig tunes the in-process message bus.
type BusConfig struct {
	QueueSize int `yaml:"queue_size" env:"LATTICE_BUS_QUEUE_SIZE"`
}

// ResourceConfig sizes the executors.
type ResourceConfig struct {
	IOWorkers  int `yaml:"io_workers" env:"LATTICE_IO_WORKERS"`
	CPUWorkers int `yaml:"cpu_workers" env:"LATTICE_CPU_WORKERS"`
}

// GatewayConfig configures the HTTP front door.
type GatewayConfig struct {
	Addr        string        `yaml:"addr" env:"LATTICE_GATEWAY_ADDR"`
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"LATTICE_GATEWAY_WAIT_TIMEOUT"`
	// APIKey protects every route but /healthz when set.
	APIKey string `yaml:"api_key" env:"LATTICE_GATEWAY_API_KEY"`
	// AllowedOrigins replaces the local-only WebSocket origin list.
	AllowedOrigins []string `yaml:"allowed_origins" env:"LATTICE_GATEWAY_ALLOWED_ORIGINS" envSeparator:","`
}

// MemoryConfig selects the memory backend. An empty Path keeps memory in
// process.
type MemoryConfig struct {
	Path            string        `yaml:"path" env:"LATTICE_MEMORY_PATH"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"LATTICE_MEMORY_CLEANUP_INTERVAL"`
}

// ModelsConfig registers hosted models for the predict agent.
type ModelsConfig struct {
	Default   string         `yaml:"default" env:"LATTICE_MODEL_DEFAULT"`
	OpenAI    ProviderConfig `yaml:"openai" envPrefix:"LATTICE_OPENAI_"`
	Anthropic ProviderConfig `yaml:"anthropic" envPrefix:"LATTICE_ANTHROPIC_"`
}

// ProviderConfig enables one provider. API keys may be left empty so the
// SDK reads its own environment variable.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Model   string `yaml:"model" env:"MODEL"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LATTICE_LOG_FORMAT"`
}

// MetricsConfig toggles Prometheus collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"LATTICE_METRICS_ENABLED"`
}

// Schedule submits Intent whenever Cron is due.
type Schedule struct {
	Name   string         `yaml:"name"`
	Cron   string         `yaml:"cron"`
	Intent map[string]any `yaml:"intent"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Broker:   BrokerConfig{Kind: broker.KindInMemory, URL: "redis://localhost:6379/0", QueueSize: 1024},
		Runtime:  RuntimeConfig{TaskTimeout: 30 * time.Second, TaskRetries: 1, RetryDelay: time.Second, RetryBackoff: string(supervisor.BackoffConstant), MaxDelay: 30 * time.Second},
		Engine:   EngineConfig{MaxConcurrent: 16, PollTimeout: time.Second},
		Bus:      BusConfig{QueueSize: 256},
		Gateway:  GatewayConfig{Addr: ":8080", WaitTimeout: 30 * time.Second},
		Memory:   MemoryConfig{CleanupInterval: time.Minute},
		Log:      LogConfig{Level: "INFO", Format: "json"},
		Metrics:  MetricsConfig{Enabled: true},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Broker.Kind = broker.NormalizeKind(cfg.Broker.Kind)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch broker.NormalizeKind(c.Broker.Kind) {
	case broker.KindInMemory, broker.KindNATS:
	default:
		errs = append(errs, fmt.Errorf("broker.kind: unknown message broker %q", c.Broker.Kind))
	}
	if c.Runtime.TaskTimeout < 0 {
		errs = append(errs, errors.New("runtime.task_timeout must not be negative"))
	}
	if c.Runtime.TaskRetries < 1 {
		errs = append(errs, errors.New("runtime.task_retries must be at least 1"))
	}
	if _, err := supervisor.ParseBackoff(c.Runtime.RetryBackoff); err != nil {
		errs = append(errs, fmt.Errorf("runtime.retry_backoff: %w", err))
	}
	if c.Engine.MaxConcurrent < 1 {
		errs = append(errs, errors.New("engine.max_concurrent must be at least 1"))
	}
	if c.Engine.IntakeRate < 0 {
		errs = append(errs, errors.New("engine.intake_rate must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be json or text, got %q", c.Log.Format))
	}
	cron := gronx.New()
	for i, s := range c.Schedules {
		if !cron.IsValid(s.Cron) {
			errs = append(errs, fmt.Errorf("schedules[%d]: invalid cron expression %q", i, s.Cron))
		}
		if t, _ := s.Intent["intent"].(string); t == "" {
			errs = append(errs, fmt.Errorf("schedules[%d]: intent type is required", i))
		}
	}
	return errors.Join(errs...)
}

// RetryPolicy converts the runtime section into a supervisor policy.
func (c *Config) RetryPolicy() supervisor.RetryPolicy {
	backoff, _ := supervisor.ParseBackoff(c.Runtime.RetryBackoff)
	return supervisor.RetryPolicy{
		Attempts:       c.Runtime.TaskRetries,
		Delay:          c.Runtime.RetryDelay,
		Backoff:        backoff,
		MaxDelay:       c.Runtime.MaxDelay,
		AttemptTimeout: c.Runtime.TaskTimeout,
	}
}

// Logger builds the process logger writing to stdout.
func (c *Config) Logger() *logging.LatticeLogger { return c.LoggerTo(os.Stdout) }

// LoggerTo builds the process logger writing to w. An unknown level falls
// back to INFO.
func (c *Config) LoggerTo(w io.Writer) *logging.LatticeLogger {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = level
	cfg.Format = c.Log.Format
	cfg.Output = w
	return logging.NewLogger(cfg)
}
