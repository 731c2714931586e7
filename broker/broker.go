package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/ochoaughini/Cognition-Lattice/broker/inmemory"
	"github.com/ochoaughini/Cognition-Lattice/broker/natsbroker"
	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
)

// Broker kinds accepted by Open.
const (
	KindInMemory = "inmem"
	KindNATS     = "nats"
)

// Options selects and configures a broker.
type Options struct {
	// Kind is "inmem" (default) or "nats". "memory" and "inmemory" are
	// accepted as aliases.
	Kind      string
	URL       string
	QueueSize int
	MaxBatch  int
	Logger    logging.Logger
}

// Open builds the broker named by opts.Kind.
func Open(ctx context.Context, opts Options) (core.Broker, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	kind := NormalizeKind(opts.Kind)
	switch kind {
	case KindInMemory:
		opts.Logger.Debug("using in-memory broker")
		return inmemory.New(func(o *inmemory.Options) {
			if opts.QueueSize > 0 {
				o.QueueSize = opts.QueueSize
			}
			if opts.MaxBatch > 0 {
				o.MaxBatch = opts.MaxBatch
			}
			o.Logger = opts.Logger
		}), nil
	case KindNATS:
		return natsbroker.Connect(ctx, func(o *natsbroker.Options) {
			o.URL = opts.URL
			if opts.MaxBatch > 0 {
				o.MaxBatch = opts.MaxBatch
			}
			o.Logger = opts.Logger
		})
	default:
		return nil, fmt.Errorf("unknown message broker %q", opts.Kind)
	}
}

// NormalizeKind maps aliases to a canonical kind. Unknown kinds are returned
// lower-cased.
func NormalizeKind(kind string) string {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "", "inmem", "memory", "inmemory":
		return KindInMemory
	default:
		return k
	}
}
