package testutil

import (
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// MessageBuilder provides a fluent helper for constructing bus messages in tests.
// Example:
//
//	m := NewMessageBuilder().Source("caller").Target("echo.test").Payload("message", "hi").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type MessageBuilder struct {
	typ           core.MessageType
	source        string
	target        string
	payload       map[string]any
	metadata      map[string]any
	id            string
	correlationID string
	timestamp     time.Time
}

// NewMessageBuilder creates a builder for an INTENT from source "test".
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{typ: core.MessageTypeIntent, source: "test", payload: map[string]any{}}
}

// Type sets the message type (chainable).
func (b *MessageBuilder) Type(t core.MessageType) *MessageBuilder { b.typ = t; return b }

// Source sets the source (chainable).
func (b *MessageBuilder) Source(s string) *MessageBuilder { b.source = s; return b }

// Target sets the target (chainable).
func (b *MessageBuilder) Target(t string) *MessageBuilder { b.target = t; return b }

// Payload sets a payload key (chainable).
func (b *MessageBuilder) Payload(key string, val any) *MessageBuilder {
	b.payload[key] = val
	return b
}

// Meta sets a metadata key (chainable).
func (b *MessageBuilder) Meta(key string, val any) *MessageBuilder {
	if b.metadata == nil {
		b.metadata = map[string]any{}
	}
	b.metadata[key] = val
	return b
}

// ID overrides the generated message id (chainable). Use where determinism matters.
func (b *MessageBuilder) ID(id string) *MessageBuilder { b.id = id; return b }

// Correlation sets the correlation id (chainable).
func (b *MessageBuilder) Correlation(id string) *MessageBuilder { b.correlationID = id; return b }

// At fixes the timestamp (chainable).
func (b *MessageBuilder) At(ts time.Time) *MessageBuilder { b.timestamp = ts; return b }

// Build finalizes the message.
func (b *MessageBuilder) Build() core.Message {
	opts := []core.MessageOption{core.WithTarget(b.target)}
	if b.metadata != nil {
		opts = append(opts, core.WithMetadata(b.metadata))
	}
	if b.correlationID != "" {
		opts = append(opts, core.WithCorrelationID(b.correlationID))
	}
	m := core.NewMessage(b.typ, b.source, b.payload, opts...)
	if b.id != "" {
		if m.CorrelationID == m.MessageID {
			m.CorrelationID = b.id
		}
		m.MessageID = b.id
	}
	if !b.timestamp.IsZero() {
		m.Timestamp = b.timestamp
	}
	return m
}
