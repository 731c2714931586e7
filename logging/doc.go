// Package logging provides a minimal logging interface and adapters for the lattice.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the bus, supervisor, resource manager, dispatcher and harmonizer use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - LatticeLogger with component scoping and dispatch/workflow helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	sup := supervisor.New(func(o *supervisor.Options) { o.Logger = logger })
//
// Arguments after the message are slog style key/value pairs.
package logging
