package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// ResponseStoreOptions bounds a ResponseStore.
type ResponseStoreOptions struct {
	// TTL is how long an uncollected result is kept. Zero keeps results
	// until they are collected or evicted by MaxSize.
	TTL time.Duration
	// MaxSize caps uncollected results. The oldest result is evicted when
	// the cap is reached. Zero means unbounded.
	MaxSize int
	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultResponseStoreOptions are applied by NewResponseStore.
var DefaultResponseStoreOptions = ResponseStoreOptions{
	TTL:     10 * time.Minute,
	MaxSize: 10000,
}

// ResponseStore keeps terminal results until a caller collects them.
//
// Results are keyed by intent_id and handed out at most once: Get and Wait
// both remove the entry they return. Results without an intent_id are
// dropped. Uncollected results expire after TTL; Sweep removes them.
type ResponseStore struct {
	opts    ResponseStoreOptions
	mu      sync.Mutex
	results map[string]storedResult
	waiters map[string][]chan core.Result
}

type storedResult struct {
	res    core.Result
	stored time.Time
}

// NewResponseStore creates an empty store.
func NewResponseStore(optFns ...func(o *ResponseStoreOptions)) *ResponseStore {
	opts := DefaultResponseStoreOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ResponseStore{
		opts:    opts,
		results: make(map[string]storedResult),
		waiters: make(map[string][]chan core.Result),
	}
}

// Add stores res. A caller blocked in Wait for the same id receives it
// directly and the store keeps nothing.
func (s *ResponseStore) Add(res core.Result) {
	id := res.IntentID()
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws := s.waiters[id]; len(ws) > 0 {
		w := ws[0]
		if len(ws) == 1 {
			delete(s.waiters, id)
		} else {
			s.waiters[id] = ws[1:]
		}
		w <- res
		return
	}
	now := s.opts.Now()
	if _, replace := s.results[id]; !replace && s.opts.MaxSize > 0 && len(s.results) >= s.opts.MaxSize {
		s.sweepLocked(now)
		if len(s.results) >= s.opts.MaxSize {
			s.evictOldestLocked()
		}
	}
	s.results[id] = storedResult{res: res, stored: now}
}

// Sweep drops results older than TTL and returns how many were removed.
func (s *ResponseStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.opts.Now())
}

func (s *ResponseStore) sweepLocked(now time.Time) int {
	if s.opts.TTL <= 0 {
		return 0
	}
	n := 0
	for id, r := range s.results {
		if now.Sub(r.stored) >= s.opts.TTL {
			delete(s.results, id)
			n++
		}
	}
	return n
}

func (s *ResponseStore) evictOldestLocked() {
	var (
		oldest string
		at     time.Time
	)
	for id, r := range s.results {
		if oldest == "" || r.stored.Before(at) {
			oldest, at = id, r.stored
		}
	}
	delete(s.results, oldest)
}

// Get pops the result for id.
func (s *ResponseStore) Get(id string) (core.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if ok {
		delete(s.results, id)
	}
	return r.res, ok
}

// Wait blocks until the result for id is available or ctx is done.
func (s *ResponseStore) Wait(ctx context.Context, id string) (core.Result, error) {
	s.mu.Lock()
	if r, ok := s.results[id]; ok {
		delete(s.results, id)
		s.mu.Unlock()
		return r.res, nil
	}
	ch := make(chan core.Result, 1)
	s.waiters[id] = append(s.waiters[id], ch)
	s.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		ws := s.waiters[id]
		for i, w := range ws {
			if w == ch {
				ws = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		if len(ws) == 0 {
			delete(s.waiters, id)
		} else {
			s.waiters[id] = ws
		}
		// Add may have delivered between ctx firing and the lock.
		select {
		case res := <-ch:
			return res, nil
		default:
		}
		return nil, ctx.Err()
	}
}

// Len returns the number of uncollected results.
func (s *ResponseStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}
