package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
)

// HookType names a point in the dispatch lifecycle.
type HookType string

const (
	// HookBeforeDispatch runs after the handler is resolved and before it
	// executes. An error aborts the dispatch with an error result.
	HookBeforeDispatch HookType = "before_dispatch"

	// HookAfterDispatch runs once the result is known, for successes and
	// failures alike. Errors are logged and otherwise ignored.
	HookAfterDispatch HookType = "after_dispatch"

	// HookOnError runs when the dispatch produced an error result.
	HookOnError HookType = "on_error"
)

// HookContext carries the state visible to a hook.
type HookContext struct {
	// Type is the lifecycle point being executed.
	Type HookType

	// Intent is the request. Hooks must not mutate it.
	Intent core.Intent

	// Result is nil for before hooks.
	Result core.Result

	// Err is the failure that produced an error result, if any.
	Err error

	// Duration is zero for before hooks.
	Duration time.Duration

	// Metadata is shared by every hook of a single dispatch.
	Metadata map[string]any
}

// Hook is a dispatch lifecycle extension.
type Hook interface {
	Type() HookType
	Execute(ctx context.Context, hc *HookContext) error
}

// FunctionHook adapts a function to Hook.
type FunctionHook struct {
	hookType HookType
	fn       func(ctx context.Context, hc *HookContext) error
}

// NewFunctionHook wraps fn as a hook of the given type.
func NewFunctionHook(hookType HookType, fn func(ctx context.Context, hc *HookContext) error) *FunctionHook {
	return &FunctionHook{hookType: hookType, fn: fn}
}

// Type returns the hook type.
func (h *FunctionHook) Type() HookType { return h.hookType }

// Execute calls the wrapped function.
func (h *FunctionHook) Execute(ctx context.Context, hc *HookContext) error { return h.fn(ctx, hc) }

// LoggingHook writes one log line per lifecycle point it is registered for.
type LoggingHook struct {
	hookType HookType
	logger   logging.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(hookType HookType, logger logging.Logger) *LoggingHook {
	return &LoggingHook{hookType: hookType, logger: logger}
}

// Type returns the hook type.
func (h *LoggingHook) Type() HookType { return h.hookType }

// Execute logs the intent and, when known, its outcome.
func (h *LoggingHook) Execute(_ context.Context, hc *HookContext) error {
	if h.logger == nil {
		return nil
	}
	args := []any{"hook", string(hc.Type), "intent", hc.Intent.Type(), "intent_id", hc.Intent.ID()}
	if hc.Result != nil {
		args = append(args, "status", hc.Result.Status(), "duration", hc.Duration)
	}
	if hc.Err != nil {
		args = append(args, "error", hc.Err)
	}
	h.logger.Debug("dispatch hook", args...)
	return nil
}

// HookManager holds hooks by type. Hooks of one type run in registration
// order and the first error stops the chain. Safe for concurrent use.
type HookManager struct {
	mu    sync.RWMutex
	hooks map[HookType][]Hook
}

// NewHookManager creates an empty manager.
func NewHookManager() *HookManager {
	return &HookManager{hooks: make(map[HookType][]Hook)}
}

// Register adds a hook.
func (m *HookManager) Register(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[h.Type()] = append(m.hooks[h.Type()], h)
}

// Len returns the number of hooks registered for t.
func (m *HookManager) Len(t HookType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks[t])
}

// Run executes the hooks registered for hc.Type.
func (m *HookManager) Run(ctx context.Context, hc *HookContext) error {
	m.mu.RLock()
	hooks := append([]Hook(nil), m.hooks[hc.Type]...)
	m.mu.RUnlock()

	for _, h := range hooks {
		if err := h.Execute(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}
