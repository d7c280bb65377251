// Package cache provides the caching primitives used by the service: a
// generic in-process TTL map with an explicit stale-read path ([TTL]) and a
// byte-oriented, admission-controlled cache backed by ristretto ([L1]).
package cache

import (
	"context"
	"time"
)

// Cache is the byte-oriented caching contract used for opaque upstream
// payloads that are safe to evict early.
type Cache interface {
	// Get retrieves a value by key. The boolean indicates a cache hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key with the given TTL. A zero TTL means the
	// entry has no automatic expiration.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// GetOrSet returns the cached value for key. On a cache miss it calls
	// loader exactly once, stores the result with the TTL the loader
	// returned, and returns it.
	GetOrSet(ctx context.Context, key string, loader Loader) ([]byte, error)
}

// Loader produces a value and the TTL it should be cached for.
type Loader func(ctx context.Context) (val []byte, ttl time.Duration, err error)

// Stats receives hit/miss notifications. Implementations must be safe for
// concurrent use.
type Stats interface {
	Hit(name string)
	Miss(name string)
}

type noopStats struct{}

func (noopStats) Hit(string)  {}
func (noopStats) Miss(string) {}
