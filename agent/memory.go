package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/memory"
)

// Intent types served by Memory.
const (
	IntentMemoryPut    = "memory.put"
	IntentMemoryGet    = "memory.get"
	IntentMemoryDelete = "memory.delete"
	IntentMemorySearch = "memory.search"
)

type previous struct {
	value  any
	exists bool
}

// Memory exposes a memory.Store as intents. A committed memory.put is undone
// by Rollback, which restores the value the key held before.
type Memory struct {
	store memory.Store

	mu   sync.Mutex
	undo map[string]previous
}

// NewMemory creates a Memory handler over store.
func NewMemory(store memory.Store) *Memory {
	return &Memory{store: store, undo: make(map[string]previous)}
}

func (*Memory) IntentTypes() []string {
	return []string{IntentMemoryPut, IntentMemoryGet, IntentMemoryDelete, IntentMemorySearch}
}

func (m *Memory) Execute(ctx context.Context, intent core.Intent) (core.Result, error) {
	switch intent.Type() {
	case IntentMemoryPut:
		return m.put(ctx, intent)
	case IntentMemoryGet:
		key, err := requireString(intent, "key")
		if err != nil {
			return nil, err
		}
		v, err := m.store.Get(ctx, key)
		if errors.Is(err, memory.ErrNotFound) {
			return core.OK(map[string]any{"key": key, "found": false}), nil
		}
		if err != nil {
			return nil, err
		}
		return core.OK(map[string]any{"key": key, "found": true, "value": v}), nil
	case IntentMemoryDelete:
		key, err := requireString(intent, "key")
		if err != nil {
			return nil, err
		}
		if err := m.store.Delete(ctx, key); err != nil {
			return nil, err
		}
		return core.OK(map[string]any{"key": key}), nil
	case IntentMemorySearch:
		entries, err := m.store.Search(ctx, stringParam(intent, "query"), intParam(intent, "limit"))
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]any{"key": e.Key, "value": e.Value})
		}
		return core.OK(map[string]any{"entries": out, "count": len(out)}), nil
	default:
		return nil, &core.DispatchError{IntentType: intent.Type()}
	}
}

func (m *Memory) put(ctx context.Context, intent core.Intent) (core.Result, error) {
	key, err := requireString(intent, "key")
	if err != nil {
		return nil, err
	}
	value, ok := param(intent, "value")
	if !ok {
		return nil, &core.ValidationError{Field: "value", Reason: "is required"}
	}
	ttl, err := durationParam(intent, "ttl")
	if err != nil {
		return nil, err
	}

	prev, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		m.remember(intent.ID(), previous{})
	case err != nil:
		return nil, err
	default:
		m.remember(intent.ID(), previous{value: prev, exists: true})
	}

	if err := m.store.Put(ctx, key, value, ttl); err != nil {
		return nil, err
	}
	return core.OK(map[string]any{"key": key}), nil
}

func (m *Memory) remember(id string, p previous) {
	if id == "" {
		return
	}
	m.mu.Lock()
	m.undo[id] = p
	m.mu.Unlock()
}

// Rollback undoes a memory.put. Other intents have nothing to undo.
func (m *Memory) Rollback(ctx context.Context, intent core.Intent) error {
	if intent.Type() != IntentMemoryPut {
		return nil
	}
	key, err := requireString(intent, "key")
	if err != nil {
		return err
	}
	m.mu.Lock()
	p, ok := m.undo[intent.ID()]
	delete(m.undo, intent.ID())
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if p.exists {
		return m.store.Put(ctx, key, p.value, 0)
	}
	return m.store.Delete(ctx, key)
}
