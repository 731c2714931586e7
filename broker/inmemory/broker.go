package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
)

// Options configures a Broker.
type Options struct {
	// QueueSize bounds each queue. SendIntent and PublishResponse block while
	// the queue is full.
	QueueSize int
	// MaxBatch bounds how many items a single receive returns.
	MaxBatch int
	Logger   logging.Logger
}

// Broker is an in-memory core.Broker.
type Broker struct {
	intents   chan core.Intent
	responses chan core.Result
	maxBatch  int
	logger    logging.Logger

	mu       sync.Mutex
	inflight map[string]core.Intent

	done      chan struct{}
	closeOnce sync.Once
}

var _ core.Broker = (*Broker)(nil)

// New creates a Broker.
func New(optFns ...func(o *Options)) *Broker {
	opts := Options{QueueSize: 1024, MaxBatch: 64, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.MaxBatch < 1 {
		opts.MaxBatch = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Broker{
		intents:   make(chan core.Intent, opts.QueueSize),
		responses: make(chan core.Result, opts.QueueSize),
		maxBatch:  opts.MaxBatch,
		logger:    opts.Logger,
		inflight:  make(map[string]core.Intent),
		done:      make(chan struct{}),
	}
}

func (b *Broker) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// SendIntent enqueues a copy of intent.
func (b *Broker) SendIntent(ctx context.Context, intent core.Intent) error {
	if intent.Type() == "" {
		return &core.ValidationError{Field: core.KeyIntent, Reason: "is required"}
	}
	return send(ctx, b, b.intents, intent.Clone())
}

// PublishResponse enqueues a copy of response.
func (b *Broker) PublishResponse(ctx context.Context, response core.Result) error {
	return send(ctx, b, b.responses, core.Result(core.CloneMap(response)))
}

func send[T any](ctx context.Context, b *Broker, ch chan T, v T) error {
	if b.closed() {
		return core.ErrNotRunning
	}
	select {
	case ch <- v:
		return nil
	case <-b.done:
		return core.ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReceiveIntents returns queued intents, waiting up to timeout for each next
// one. Returned intents stay in flight until acknowledged.
func (b *Broker) ReceiveIntents(ctx context.Context, timeout time.Duration) ([]core.Intent, error) {
	batch, err := receive(ctx, b, b.intents, timeout)
	if len(batch) > 0 {
		b.mu.Lock()
		for _, in := range batch {
			if id := in.ID(); id != "" {
				b.inflight[id] = in
			}
		}
		b.mu.Unlock()
	}
	return batch, err
}

// ReceiveResponses returns queued responses.
func (b *Broker) ReceiveResponses(ctx context.Context, timeout time.Duration) ([]core.Result, error) {
	return receive(ctx, b, b.responses, timeout)
}

func receive[T any](ctx context.Context, b *Broker, ch chan T, timeout time.Duration) ([]T, error) {
	if b.closed() {
		return nil, core.ErrNotRunning
	}
	var batch []T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for len(batch) < b.maxBatch {
		select {
		case v := <-ch:
			batch = append(batch, v)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		case <-timer.C:
			return batch, nil
		case <-b.done:
			return batch, nil
		case <-ctx.Done():
			if len(batch) > 0 {
				return batch, nil
			}
			return nil, ctx.Err()
		}
	}
	return batch, nil
}

// AcknowledgeIntent removes intent from the in-flight set.
func (b *Broker) AcknowledgeIntent(_ context.Context, intent core.Intent) error {
	id := intent.ID()
	if id == "" {
		return &core.ValidationError{Field: core.KeyIntentID, Reason: "is required"}
	}
	b.mu.Lock()
	_, ok := b.inflight[id]
	delete(b.inflight, id)
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("acknowledged unknown intent", "intent_id", id)
	}
	return nil
}

// Pending returns the ids of received but unacknowledged intents.
func (b *Broker) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.inflight))
	for id := range b.inflight {
		out = append(out, id)
	}
	return out
}

// Len returns the number of queued intents and responses.
func (b *Broker) Len() (intents, responses int) {
	return len(b.intents), len(b.responses)
}

// Close stops the broker and drops queued items.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		dropped := 0
		for {
			select {
			case <-b.intents:
				dropped++
				continue
			case <-b.responses:
				dropped++
				continue
			default:
			}
			break
		}
		if dropped > 0 {
			b.logger.Warn("broker closed with queued items", "dropped", dropped)
		}
	})
	return nil
}

// IsClosed reports whether err means the broker was closed.
func IsClosed(err error) bool { return errors.Is(err, core.ErrNotRunning) }
