package natsbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
)

// Default subjects and queue group.
const (
	DefaultIntentSubject   = "lattice.intents"
	DefaultResponseSubject = "lattice.responses"
	DefaultQueueGroup      = "lattice"
)

// Options configures a Broker.
type Options struct {
	URL             string
	IntentSubject   string
	ResponseSubject string
	QueueGroup      string
	// MaxBatch bounds how many messages a single receive returns.
	MaxBatch      int
	Name          string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
	Logger        logging.Logger
}

// Broker is a NATS-backed core.Broker.
type Broker struct {
	opts   Options
	conn   *nats.Conn
	logger logging.Logger

	intents   *nats.Subscription
	responses *nats.Subscription

	mu      sync.Mutex
	pending map[string]struct{}
}

var _ core.Broker = (*Broker)(nil)

// ResolveURL returns url when it names a NATS server and nats.DefaultURL
// otherwise. Configuration shared with other transports, such as a redis://
// URL, therefore falls back to a local server.
func ResolveURL(url string) string {
	for _, scheme := range []string{"nats://", "tls://", "ws://", "wss://"} {
		if strings.HasPrefix(url, scheme) {
			return url
		}
	}
	return nats.DefaultURL
}

// Connect dials the server and subscribes to the intent and response
// subjects.
func Connect(ctx context.Context, optFns ...func(o *Options)) (*Broker, error) {
	opts := Options{
		URL:             nats.DefaultURL,
		IntentSubject:   DefaultIntentSubject,
		ResponseSubject: DefaultResponseSubject,
		QueueGroup:      DefaultQueueGroup,
		MaxBatch:        64,
		Name:            "lattice",
		Timeout:         5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   -1,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxBatch < 1 {
		opts.MaxBatch = 1
	}
	url := ResolveURL(opts.URL)
	if url != opts.URL {
		opts.Logger.Warn("broker url is not a nats url, using default", "url", opts.URL, "default", url)
	}

	b := &Broker{opts: opts, logger: opts.Logger, pending: make(map[string]struct{})}

	type dialed struct {
		conn *nats.Conn
		err  error
	}
	ch := make(chan dialed, 1)
	go func() {
		conn, err := nats.Connect(url, b.connectOptions()...)
		ch <- dialed{conn, err}
	}()

	var conn *nats.Conn
	select {
	case d := <-ch:
		if d.err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", url, d.err)
		}
		conn = d.conn
	case <-ctx.Done():
		go func() {
			if d := <-ch; d.conn != nil {
				d.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
	b.conn = conn

	var err error
	if b.intents, err = conn.QueueSubscribeSync(opts.IntentSubject, opts.QueueGroup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", opts.IntentSubject, err)
	}
	if b.responses, err = conn.SubscribeSync(opts.ResponseSubject); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", opts.ResponseSubject, err)
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("flush nats: %w", err)
	}
	b.logger.Info("connected to nats", "url", conn.ConnectedUrlRedacted(), "intents", opts.IntentSubject, "responses", opts.ResponseSubject)
	return b, nil
}

func (b *Broker) connectOptions() []nats.Option {
	return []nats.Option{
		nats.Name(b.opts.Name),
		nats.Timeout(b.opts.Timeout),
		nats.ReconnectWait(b.opts.ReconnectWait),
		nats.MaxReconnects(b.opts.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			b.logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			b.logger.Debug("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			b.logger.Error("nats async error", "subject", subject, "error", err)
		}),
	}
}

func (b *Broker) publish(subject string, v map[string]any) error {
	if b.conn.IsClosed() {
		return core.ErrNotRunning
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return core.ErrNotRunning
		}
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// SendIntent publishes intent on the intent subject.
func (b *Broker) SendIntent(_ context.Context, intent core.Intent) error {
	if intent.Type() == "" {
		return &core.ValidationError{Field: core.KeyIntent, Reason: "is required"}
	}
	return b.publish(b.opts.IntentSubject, intent)
}

// PublishResponse publishes response on the response subject.
func (b *Broker) PublishResponse(_ context.Context, response core.Result) error {
	return b.publish(b.opts.ResponseSubject, response)
}

// ReceiveIntents returns intents until the subscription is idle for timeout.
func (b *Broker) ReceiveIntents(ctx context.Context, timeout time.Duration) ([]core.Intent, error) {
	raw, err := b.receive(ctx, b.intents, timeout)
	out := make([]core.Intent, 0, len(raw))
	b.mu.Lock()
	for _, m := range raw {
		in := core.Intent(m)
		if id := in.ID(); id != "" {
			b.pending[id] = struct{}{}
		}
		out = append(out, in)
	}
	b.mu.Unlock()
	return out, err
}

// ReceiveResponses returns responses until the subscription is idle for
// timeout.
func (b *Broker) ReceiveResponses(ctx context.Context, timeout time.Duration) ([]core.Result, error) {
	raw, err := b.receive(ctx, b.responses, timeout)
	out := make([]core.Result, 0, len(raw))
	for _, m := range raw {
		out = append(out, core.Result(m))
	}
	return out, err
}

func (b *Broker) receive(ctx context.Context, sub *nats.Subscription, timeout time.Duration) ([]map[string]any, error) {
	if b.conn.IsClosed() {
		return nil, core.ErrNotRunning
	}
	var batch []map[string]any
	for len(batch) < b.opts.MaxBatch {
		if err := ctx.Err(); err != nil {
			if len(batch) > 0 {
				return batch, nil
			}
			return nil, err
		}
		msg, err := sub.NextMsg(timeout)
		switch {
		case errors.Is(err, nats.ErrTimeout):
			return batch, nil
		case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
			if len(batch) > 0 {
				return batch, nil
			}
			return nil, core.ErrNotRunning
		case err != nil:
			return batch, fmt.Errorf("receive %s: %w", sub.Subject, err)
		}
		var m map[string]any
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			b.logger.Warn("dropping undecodable message", "subject", msg.Subject, "error", err)
			continue
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// AcknowledgeIntent clears local in-flight tracking for intent.
func (b *Broker) AcknowledgeIntent(_ context.Context, intent core.Intent) error {
	id := intent.ID()
	if id == "" {
		return &core.ValidationError{Field: core.KeyIntentID, Reason: "is required"}
	}
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
	return nil
}

// Pending returns the number of received but unacknowledged intents.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close drains the subscriptions and closes the connection.
func (b *Broker) Close() error {
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
