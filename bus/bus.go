package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/metric"
)

// Options configures a Bus.
type Options struct {
	// QueueSize is the per subscription buffer. Publishers block only while a
	// subscriber's queue is full.
	QueueSize int
	// Source is used as the source of messages built by Request.
	Source  string
	Logger  logging.Logger
	Metrics *metric.Metrics
}

// DefaultOptions holds the defaults applied by New.
var DefaultOptions = Options{
	QueueSize: 256,
	Source:    "system",
}

type wildcardEntry struct {
	pattern  string
	segments []string
	sub      *Subscription
}

// Bus is an in-process topic hub.
type Bus struct {
	opts    Options
	logger  logging.Logger
	metrics *metric.Metrics

	mu        sync.RWMutex
	exact     map[string]map[*Subscription]struct{}
	wildcards []wildcardEntry
	subs      map[*Subscription]struct{}

	running   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a running bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions.QueueSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	b := &Bus{
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		exact:   make(map[string]map[*Subscription]struct{}),
		subs:    make(map[*Subscription]struct{}),
		done:    make(chan struct{}),
	}
	b.running.Store(true)
	return b
}

// Running reports whether the bus accepts operations.
func (b *Bus) Running() bool { return b.running.Load() }

// Subscriptions returns the number of live subscriptions.
func (b *Bus) Subscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscribe registers a subscription for the given patterns. The
// subscription is cancelled automatically when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, patterns ...string) (*Subscription, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("subscribe: at least one pattern is required")
	}
	for _, p := range patterns {
		if err := ValidatePattern(p); err != nil {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := newSubscription(b, patterns, b.opts.QueueSize)

	b.mu.Lock()
	if !b.running.Load() {
		b.mu.Unlock()
		return nil, fmt.Errorf("subscribe: %w", core.ErrNotRunning)
	}
	for _, p := range patterns {
		if IsPattern(p) {
			b.wildcards = append(b.wildcards, wildcardEntry{pattern: p, segments: strings.Split(p, "."), sub: sub})
			continue
		}
		set, ok := b.exact[p]
		if !ok {
			set = make(map[*Subscription]struct{})
			b.exact[p] = set
		}
		set[sub] = struct{}{}
	}
	b.subs[sub] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	b.metrics.SetSubscriptions(n)
	sub.bindContext(ctx)
	b.logger.Debug("subscribed", "subscription", sub.id, "patterns", patterns)
	return sub, nil
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	for _, p := range sub.patterns {
		if IsPattern(p) {
			continue
		}
		if set, ok := b.exact[p]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.exact, p)
			}
		}
	}
	kept := b.wildcards[:0]
	for _, w := range b.wildcards {
		if w.sub != sub {
			kept = append(kept, w)
		}
	}
	clear(b.wildcards[len(kept):])
	b.wildcards = kept
	delete(b.subs, sub)
	n := len(b.subs)
	b.mu.Unlock()

	b.metrics.SetSubscriptions(n)
	b.logger.Debug("unsubscribed", "subscription", sub.id)
}

// targets returns every subscription matching topic, each once.
func (b *Bus) targets(topic string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Subscription
	seen := make(map[*Subscription]struct{})
	for sub := range b.exact[topic] {
		seen[sub] = struct{}{}
		out = append(out, sub)
	}
	if len(b.wildcards) > 0 {
		parts := strings.Split(topic, ".")
		for _, w := range b.wildcards {
			if _, dup := seen[w.sub]; dup || !segmentsMatch(w.segments, parts) {
				continue
			}
			seen[w.sub] = struct{}{}
			out = append(out, w.sub)
		}
	}
	return out
}

func segmentsMatch(segments, parts []string) bool {
	if len(segments) != len(parts) {
		return false
	}
	for i, seg := range segments {
		if seg != Wildcard && seg != parts[i] {
			return false
		}
	}
	return true
}

// Publish delivers a copy of msg to every subscription matching topic.
// Publishing to a topic without subscribers is a no-op.
func (b *Bus) Publish(ctx context.Context, topic string, msg core.Message) error {
	if !b.running.Load() {
		return fmt.Errorf("publish %s: %w", topic, core.ErrNotRunning)
	}
	delivered := 0
	for _, sub := range b.targets(topic) {
		ok, err := sub.deliver(ctx, b.done, msg.Clone())
		if err != nil {
			b.metrics.RecordPublish(delivered)
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		if ok {
			delivered++
		}
	}
	b.metrics.RecordPublish(delivered)
	return nil
}

// Request publishes an INTENT carrying payload to topic and waits up to
// timeout for the correlated RESPONSE. The private response subscription is
// removed on every path.
func (b *Bus) Request(ctx context.Context, topic string, payload map[string]any, timeout time.Duration) (core.Message, error) {
	msg := core.NewMessage(core.MessageTypeIntent, b.opts.Source, payload, core.WithTarget(topic))

	sub, err := b.Subscribe(ctx, ResponseTopic(msg.MessageID))
	if err != nil {
		return core.Message{}, fmt.Errorf("request %s: %w", topic, err)
	}
	defer sub.Cancel()

	// The timeout covers the publish too, which blocks while a matching
	// subscriber's queue is full.
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timedOut := func(err error) bool {
		return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
	}
	timeoutErr := func() error {
		b.logger.Warn("request timed out", "topic", topic, "message_id", msg.MessageID, "timeout", timeout)
		return &core.TimeoutError{Name: "request " + topic, Timeout: timeout}
	}

	if err := b.Publish(waitCtx, topic, msg); err != nil {
		if timedOut(err) {
			return core.Message{}, timeoutErr()
		}
		return core.Message{}, fmt.Errorf("request %s: %w", topic, err)
	}

	for {
		resp, err := sub.Next(waitCtx)
		if err != nil {
			if timedOut(err) {
				return core.Message{}, timeoutErr()
			}
			return core.Message{}, fmt.Errorf("request %s: %w", topic, err)
		}
		if resp.CorrelationID != msg.MessageID {
			continue
		}
		if resp.Type == core.MessageTypeResponse || resp.Type == core.MessageTypeError {
			return resp, nil
		}
	}
}

// Respond publishes a reply to req on its response topic.
func (b *Bus) Respond(ctx context.Context, req core.Message, payload map[string]any) error {
	return b.Publish(ctx, ResponseTopic(req.MessageID), req.Reply(payload))
}

// Close stops the bus, drops every pending message and clears the tables.
// Later calls are no-ops.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.running.Store(false)
		close(b.done)

		b.mu.Lock()
		subs := make([]*Subscription, 0, len(b.subs))
		for sub := range b.subs {
			subs = append(subs, sub)
		}
		b.exact = make(map[string]map[*Subscription]struct{})
		b.wildcards = nil
		b.subs = make(map[*Subscription]struct{})
		b.mu.Unlock()

		for _, sub := range subs {
			sub.terminate(core.ErrNotRunning)
		}
		b.metrics.SetSubscriptions(0)
		b.logger.Info("bus closed", "dropped_subscriptions", len(subs))
	})
	return nil
}
