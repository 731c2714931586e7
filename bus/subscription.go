package bus

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// ErrSubscriptionClosed is returned by Next after the subscriber cancelled.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Subscription is a set of patterns bound to one delivery queue.
type Subscription struct {
	id       string
	patterns []string
	bus      *Bus

	ch   chan core.Message
	done chan struct{}

	once   sync.Once
	reason error

	mu   sync.Mutex
	stop func() bool
}

func newSubscription(b *Bus, patterns []string, size int) *Subscription {
	return &Subscription{
		id:       core.NewID(),
		patterns: append([]string(nil), patterns...),
		bus:      b,
		ch:       make(chan core.Message, size),
		done:     make(chan struct{}),
	}
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// Patterns returns the patterns the subscription was created with.
func (s *Subscription) Patterns() []string { return append([]string(nil), s.patterns...) }

// Done is closed once the subscription stops delivering.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns why the subscription stopped, or nil while it is live.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.reason
	default:
		return nil
	}
}

// Next blocks until a message arrives, the subscription ends or ctx is done.
// Queued messages are never returned once the subscription has ended.
func (s *Subscription) Next(ctx context.Context) (core.Message, error) {
	select {
	case <-s.done:
		return core.Message{}, s.reason
	default:
	}
	select {
	case m := <-s.ch:
		return m, nil
	case <-s.done:
		return core.Message{}, s.reason
	case <-ctx.Done():
		return core.Message{}, ctx.Err()
	}
}

// Messages returns the subscription as a sequence that ends when the
// subscription ends or ctx is done.
func (s *Subscription) Messages(ctx context.Context) iter.Seq[core.Message] {
	return func(yield func(core.Message) bool) {
		for {
			m, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(m) {
				return
			}
		}
	}
}

// Cancel removes the subscription from the bus. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s.terminate(ErrSubscriptionClosed) {
		s.bus.remove(s)
	}
}

// terminate ends delivery and drains the queue. It reports whether this call
// was the one that ended the subscription.
func (s *Subscription) terminate(reason error) bool {
	ended := false
	s.once.Do(func() {
		s.reason = reason
		close(s.done)
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		ended = true
	})
	if ended {
		s.drain()
	}
	return ended
}

// bindContext cancels the subscription when ctx is done.
func (s *Subscription) bindContext(ctx context.Context) {
	stop := context.AfterFunc(ctx, s.Cancel)
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		stop()
	default:
		s.stop = stop
	}
}

func (s *Subscription) drain() {
	for {
		select {
		case <-s.ch:
		default:
			return
		}
	}
}

// deliver enqueues m, blocking only while the queue is full.
func (s *Subscription) deliver(ctx context.Context, busDone <-chan struct{}, m core.Message) (bool, error) {
	select {
	case <-s.done:
		return false, nil
	default:
	}
	select {
	case s.ch <- m:
		return true, nil
	default:
	}
	select {
	case s.ch <- m:
		return true, nil
	case <-s.done:
		return false, nil
	case <-busDone:
		return false, core.ErrNotRunning
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
