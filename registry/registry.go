package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
)

// ErrNoIntentTypes is returned by RegisterAgent when the handler does not
// declare any intent type.
var ErrNoIntentTypes = errors.New("handler declares no intent types")

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry is a concurrency-safe table of intent type to handler factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]core.Factory
	logger    logging.Logger
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Registry{
		factories: make(map[string]core.Factory),
		logger:    opts.Logger,
	}
}

// Register maps intentType to factory, replacing any earlier mapping.
func (r *Registry) Register(intentType string, factory core.Factory) error {
	if intentType == "" {
		return &core.ValidationError{Field: core.KeyIntent, Reason: "must not be empty"}
	}
	if factory == nil {
		return fmt.Errorf("register %s: nil factory", intentType)
	}
	r.mu.Lock()
	_, replaced := r.factories[intentType]
	r.factories[intentType] = factory
	r.mu.Unlock()

	r.logger.Debug("handler registered", "intent", intentType, "replaced", replaced)
	return nil
}

// RegisterHandler registers a single shared handler instance.
func (r *Registry) RegisterHandler(intentType string, h core.Handler) error {
	if h == nil {
		return fmt.Errorf("register %s: nil handler", intentType)
	}
	return r.Register(intentType, core.Singleton(h))
}

// RegisterAgent registers factory under every type its handler declares
// through core.IntentTyper.
func (r *Registry) RegisterAgent(factory core.Factory) error {
	if factory == nil {
		return errors.New("register agent: nil factory")
	}
	typer, ok := factory().(core.IntentTyper)
	if !ok || len(typer.IntentTypes()) == 0 {
		return ErrNoIntentTypes
	}
	for _, t := range typer.IntentTypes() {
		if err := r.Register(t, factory); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes the mapping for intentType and reports whether one
// existed.
func (r *Registry) Unregister(intentType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[intentType]
	delete(r.factories, intentType)
	return ok
}

// Lookup returns a fresh handler for intentType or a *core.DispatchError.
func (r *Registry) Lookup(intentType string) (core.Handler, error) {
	r.mu.RLock()
	factory, ok := r.factories[intentType]
	r.mu.RUnlock()
	if !ok {
		return nil, &core.DispatchError{IntentType: intentType}
	}
	h := factory()
	if h == nil {
		return nil, &core.DispatchError{IntentType: intentType}
	}
	return h, nil
}

// Has reports whether intentType is registered.
func (r *Registry) Has(intentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[intentType]
	return ok
}

// Types returns the registered intent types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Snapshot returns a copy of the current table.
func (r *Registry) Snapshot() map[string]core.Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]core.Factory, len(r.factories))
	for t, f := range r.factories {
		out[t] = f
	}
	return out
}

// Reload replaces the whole table with factories. Entries with an empty type
// or a nil factory are rejected and the table is left untouched.
func (r *Registry) Reload(factories map[string]core.Factory) error {
	next := make(map[string]core.Factory, len(factories))
	for t, f := range factories {
		if t == "" || f == nil {
			return fmt.Errorf("reload: invalid entry %q", t)
		}
		next[t] = f
	}
	r.mu.Lock()
	prev := len(r.factories)
	r.factories = next
	r.mu.Unlock()

	r.logger.Info("registry reloaded", "previous", prev, "current", len(next))
	return nil
}
