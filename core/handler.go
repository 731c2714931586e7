package core

import "context"

// Handler executes intents of one or more types.
//
// A returned error and a Result whose status is "error" are both treated as
// failures by the dispatcher and the harmonizer.
type Handler interface {
	Execute(ctx context.Context, intent Intent) (Result, error)
}

// Compensator is the optional rollback capability. The harmonizer calls
// Rollback in reverse completion order on handlers that committed before a
// failing step.
type Compensator interface {
	Rollback(ctx context.Context, intent Intent) error
}

// IntentTyper is implemented by handlers that declare the intent types they serve.
type IntentTyper interface {
	IntentTypes() []string
}

// Factory yields a handler instance for a dispatch.
type Factory func() Handler

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, intent Intent) (Result, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, intent Intent) (Result, error) {
	return f(ctx, intent)
}

// Singleton returns a Factory that always yields h.
func Singleton(h Handler) Factory {
	return func() Handler { return h }
}
