// Package store defines the pluggable session storage abstraction and its
// two implementations: an in-memory cache with TTL eviction (memory.go)
// and a Redis-backed distributed store (redis.go).
package store

import (
	"context"
	"time"

	"github.com/opentool-run/interact/state"
)

// Store is a key -> state.State cache with per-key TTL. Get returns a
// deep clone so callers can never mutate stored state through the
// returned value; Set refreshes the TTL on every call.
type Store interface {
	Set(ctx context.Context, id string, s *state.State, ttl time.Duration) error
	Get(ctx context.Context, id string) (*state.State, bool, error)
	Has(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Close() error

	// OnExpired registers a callback invoked when a key's TTL elapses
	// without an explicit Delete. OnDeleted is invoked only for explicit
	// deletes. Both are engine-internal hooks; at most one callback of
	// each kind is supported.
	OnExpired(cb func(id string))
	OnDeleted(cb func(id string))
}
