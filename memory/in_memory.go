package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// InMemoryStore is a process-local Store. Values are deep copied on the way
// in and out when they are structured payloads. Expired entries are dropped
// lazily on access and eagerly by Cleanup.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &InMemoryStore{entries: make(map[string]Entry), now: opts.Clock}
}

// Put implements Store.
func (m *InMemoryStore) Put(_ context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return errors.New("memory: empty key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Key: key, Value: core.CloneValue(value), ExpiresAt: expiry(m.now(), ttl)}
	return nil
}

// Get implements Store.
func (m *InMemoryStore) Get(_ context.Context, key string) (any, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if e.Expired(m.now()) {
		m.mu.Lock()
		if cur, still := m.entries[key]; still && cur.Expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return core.CloneValue(e.Value), nil
}

// Delete implements Store.
func (m *InMemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Search implements Store.
func (m *InMemoryStore) Search(_ context.Context, query string, limit int) ([]Entry, error) {
	now := m.now()
	m.mu.RLock()
	out := make([]Entry, 0)
	for k, e := range m.entries {
		if e.Expired(now) || !strings.Contains(k, query) {
			continue
		}
		e.Value = core.CloneValue(e.Value)
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cleanup implements Store.
func (m *InMemoryStore) Cleanup(context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Store.
func (m *InMemoryStore) Close() error { return nil }
