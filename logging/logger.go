package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string (case insensitive) to a LogLevel.
// Unknown values fall back to LogLevelInfo and report an error.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug, nil
	case "", "INFO":
		return LogLevelInfo, nil
	case "WARN", "WARNING":
		return LogLevelWarn, nil
	case "ERROR", "CRITICAL":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface used across the lattice.
// Args are key/value pairs in the slog convention.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// LatticeLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via With* methods.
type LatticeLogger struct {
	logger    *slog.Logger
	level     LogLevel
	fields    map[string]any
	component string
}

// LoggerConfig configures construction of a LatticeLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, CustomAttrs: map[string]any{}}
}

// NewLogger builds a LatticeLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *LatticeLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	fields := make(map[string]any, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		fields[k] = v
	}
	return &LatticeLogger{logger: slog.New(handler), level: cfg.Level, fields: fields, component: cfg.Component}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *LatticeLogger) clone() *LatticeLogger {
	nl := *l
	nl.fields = make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	return &nl
}

// WithField adds a key/value attribute that will be attached to every log entry.
func (l *LatticeLogger) WithField(key string, value any) *LatticeLogger {
	nl := l.clone()
	nl.fields[key] = value
	return nl
}

// WithComponent sets the logical component (bus, supervisor, engine, etc.).
func (l *LatticeLogger) WithComponent(c string) *LatticeLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// Level reports the minimum level this logger emits.
func (l *LatticeLogger) Level() LogLevel { return l.level }

func (l *LatticeLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.fields)+1)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	for k, v := range l.fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *LatticeLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *LatticeLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *LatticeLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *LatticeLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *LatticeLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogDispatch records the outcome of a single intent dispatch.
func (l *LatticeLogger) LogDispatch(intentType, intentID string, dur time.Duration, success bool, err error) {
	args := []any{"intent", intentType, "intent_id", intentID, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if success {
		l.log(slog.LevelInfo, l.level <= LogLevelInfo, "Intent dispatched", args...)
		return
	}
	l.log(slog.LevelError, l.level <= LogLevelError, "Intent dispatch failed", args...)
}

// LogWorkflow records aggregate workflow run metrics.
func (l *LatticeLogger) LogWorkflow(workflow string, steps int, dur time.Duration, success bool, err error) {
	args := []any{"workflow", workflow, "step_count", steps, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if success {
		l.log(slog.LevelInfo, l.level <= LogLevelInfo, "Workflow completed", args...)
		return
	}
	l.log(slog.LevelError, l.level <= LogLevelError, "Workflow failed", args...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new LatticeLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *LatticeLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
