package testutil

import (
	"github.com/ochoaughini/Cognition-Lattice/core"
)

// IntentBuilder helps construct intents with fluent chaining for tests.
// Example:
//
//	in := NewIntentBuilder("act").ID("1").Set("simulate_failure", true).Build()
type IntentBuilder struct {
	intent core.Intent
}

// NewIntentBuilder creates a builder for an intent of the given type with a
// generated id.
func NewIntentBuilder(intentType string) *IntentBuilder {
	return &IntentBuilder{intent: core.Intent{core.KeyIntent: intentType, core.KeyIntentID: core.NewID()}}
}

// ID overrides the intent id (chainable).
func (b *IntentBuilder) ID(id string) *IntentBuilder {
	b.intent[core.KeyIntentID] = id
	return b
}

// Args sets the args field (chainable).
func (b *IntentBuilder) Args(args any) *IntentBuilder {
	b.intent[core.KeyArgs] = args
	return b
}

// Set sets an arbitrary key (chainable).
func (b *IntentBuilder) Set(key string, val any) *IntentBuilder {
	b.intent[key] = val
	return b
}

// Step appends a workflow step of the given type with optional payload
// key/value pairs (chainable).
func (b *IntentBuilder) Step(intentType string, kv ...any) *IntentBuilder {
	step := map[string]any{core.KeyIntent: intentType}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			step[k] = kv[i+1]
		}
	}
	steps, _ := b.intent[core.KeyWorkflow].([]any)
	b.intent[core.KeyWorkflow] = append(steps, step)
	return b
}

// Build returns a copy of the constructed intent.
func (b *IntentBuilder) Build() core.Intent {
	return b.intent.Clone()
}
