package core

import (
	"context"
	"time"
)

// Broker moves intents and responses between processes. The orchestration
// core depends only on this interface; variants are selected by configuration.
type Broker interface {
	// SendIntent enqueues an intent for processing.
	SendIntent(ctx context.Context, intent Intent) error
	// ReceiveIntents returns the intents that arrive before the transport has
	// been idle for timeout. An empty batch is not an error.
	ReceiveIntents(ctx context.Context, timeout time.Duration) ([]Intent, error)
	// AcknowledgeIntent marks an intent as processed.
	AcknowledgeIntent(ctx context.Context, intent Intent) error
	// PublishResponse delivers a terminal result for an intent.
	PublishResponse(ctx context.Context, response Result) error
	// ReceiveResponses mirrors ReceiveIntents for the response stream.
	ReceiveResponses(ctx context.Context, timeout time.Duration) ([]Result, error)
	// Close releases the transport.
	Close() error
}
