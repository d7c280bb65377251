package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 is an in-process cache backed by ristretto.
type L1 struct {
	name  string
	rc    *ristretto.Cache[string, []byte]
	stats Stats

	mu    sync.Mutex
	loads map[string]*call
}

// call deduplicates concurrent loads for the same key.
type call struct {
	wg  sync.WaitGroup
	val []byte
	err error

	// dropped is set under L1.mu when the key is deleted mid-load.
	dropped bool
}

// L1Option configures an L1 cache.
type L1Option func(*L1)

// WithL1Stats reports hits and misses to s under the cache's name.
func WithL1Stats(s Stats) L1Option {
	return func(l *L1) {
		if s != nil {
			l.stats = s
		}
	}
}

// NewL1 creates a new L1 cache holding at most maxItems entries.
func NewL1(name string, maxItems int64, opts ...L1Option) (*L1, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,

		// Cost is an item count, not a byte size.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	l := &L1{
		name:  name,
		rc:    rc,
		stats: noopStats{},
		loads: make(map[string]*call),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Get retrieves a value by key.
func (l *L1) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := l.rc.Get(key)
	if !ok {
		l.stats.Miss(l.name)
		return nil, false, nil
	}
	l.stats.Hit(l.name)
	return bytes.Clone(v), true, nil
}

// Set stores a value under key with the given TTL.
func (l *L1) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	l.rc.SetWithTTL(key, bytes.Clone(val), 1, ttl)
	l.rc.Wait()
	return nil
}

// Delete removes key from the cache.
// A load in flight for key still returns its value to its callers but no
// longer stores it.
func (l *L1) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.loads[key]; ok {
		c.dropped = true
	}
	l.rc.Del(key)
	return nil
}

// GetOrSet returns the cached value for key. On a miss it calls loader once
// (deduplicating concurrent callers for the same key), stores the result, and
// returns it. A non-positive TTL from the loader skips the store.
func (l *L1) GetOrSet(ctx context.Context, key string, loader Loader) ([]byte, error) {
	if v, ok, _ := l.Get(ctx, key); ok {
		return v, nil
	}

	l.mu.Lock()
	if c, ok := l.loads[key]; ok {
		l.mu.Unlock()
		c.wg.Wait()
		if c.err != nil {
			return nil, c.err
		}
		return bytes.Clone(c.val), nil
	}

	c := &call{}
	c.wg.Add(1)
	l.loads[key] = c
	l.mu.Unlock()

	var ttl time.Duration
	c.val, ttl, c.err = loader(ctx)

	l.mu.Lock()
	if c.err == nil && ttl > 0 && !c.dropped {
		_ = l.Set(ctx, key, c.val, ttl)
	}
	delete(l.loads, key)
	l.mu.Unlock()
	c.wg.Done()

	if c.err != nil {
		return nil, c.err
	}
	return bytes.Clone(c.val), nil
}

// Close releases the ristretto goroutines.
func (l *L1) Close() {
	l.rc.Close()
}
