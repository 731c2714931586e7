package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("memory: key not found")

// Entry is a stored value.
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	// ExpiresAt is zero for entries without a time to live.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether e has expired at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is a key/value memory backend.
type Store interface {
	// Put stores value under key. A ttl of zero keeps the entry until it is
	// deleted.
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (any, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Search returns live entries whose key contains query, ordered by key.
	// A limit of zero or less returns every match.
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
	// Cleanup removes expired entries and returns how many were removed.
	Cleanup(ctx context.Context) (int, error)
	Close() error
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
