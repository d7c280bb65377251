package cache

import (
	"sync"
	"time"
)

// KeepTTL passed to [TTL.Update] preserves the entry's current expiry.
const KeepTTL time.Duration = -1

// Entry is a cached value and the instant it stops being fresh. A zero
// ExpiresAt means the entry never expires.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TTL is a generic key/value store with per-entry expiry. Expiry is lazy:
// Get never returns an expired entry, but the entry stays in memory until it
// is overwritten, deleted or swept, so Peek can still serve it as a stale
// value. All methods are safe for concurrent use.
type TTL[K comparable, V any] struct {
	name       string
	defaultTTL time.Duration
	now        func() time.Time
	stats      Stats

	mu    sync.RWMutex
	items map[K]Entry[V]

	stop     chan struct{}
	stopOnce sync.Once
}

// TTLOption configures a TTL cache.
type TTLOption func(*ttlConfig)

type ttlConfig struct {
	defaultTTL time.Duration
	now        func() time.Time
	stats      Stats
	janitor    time.Duration
}

// WithDefaultTTL sets the TTL used by Set. Zero means no expiry.
func WithDefaultTTL(d time.Duration) TTLOption {
	return func(c *ttlConfig) { c.defaultTTL = d }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) TTLOption {
	return func(c *ttlConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStats reports Get hits and misses.
func WithStats(s Stats) TTLOption {
	return func(c *ttlConfig) {
		if s != nil {
			c.stats = s
		}
	}
}

// WithJanitor starts a background sweep of expired entries every interval.
// Caches that rely on Peek for stale reads must not enable it.
func WithJanitor(interval time.Duration) TTLOption {
	return func(c *ttlConfig) { c.janitor = interval }
}

// NewTTL creates a TTL cache. name labels the cache in stats.
func NewTTL[K comparable, V any](name string, opts ...TTLOption) *TTL[K, V] {
	cfg := ttlConfig{now: time.Now, stats: noopStats{}}
	for _, o := range opts {
		o(&cfg)
	}
	t := &TTL[K, V]{
		name:       name,
		defaultTTL: cfg.defaultTTL,
		now:        cfg.now,
		stats:      cfg.stats,
		items:      make(map[K]Entry[V]),
		stop:       make(chan struct{}),
	}
	if cfg.janitor > 0 {
		go t.janitor(cfg.janitor)
	}
	return t
}

// Get returns the value for key if it is present and unexpired.
func (t *TTL[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	e, ok := t.items[key]
	t.mu.RUnlock()
	if !ok || e.Expired(t.now()) {
		t.stats.Miss(t.name)
		var zero V
		return zero, false
	}
	t.stats.Hit(t.name)
	return e.Value, true
}

// Peek returns the entry for key whether or not it has expired. It is the
// explicit stale-read path; the caller decides what to do with an expired
// entry.
func (t *TTL[K, V]) Peek(key K) (Entry[V], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.items[key]
	return e, ok
}

// Set stores value under key with the default TTL.
func (t *TTL[K, V]) Set(key K, value V) {
	t.SetWithTTL(key, value, t.defaultTTL)
}

// SetWithTTL stores value under key, expiring after ttl. A ttl <= 0 stores
// the entry without expiry.
func (t *TTL[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	e := Entry[V]{Value: value, ExpiresAt: t.expiry(ttl)}
	t.mu.Lock()
	t.items[key] = e
	t.mu.Unlock()
}

// Update atomically reads the entry for key and replaces it with the value
// returned by fn. live is false when the key is absent or expired. When fn
// returns store=false the cache is left untouched. ttl follows SetWithTTL,
// except that KeepTTL preserves the existing expiry of a live entry.
func (t *TTL[K, V]) Update(key K, ttl time.Duration, fn func(old V, live bool) (V, bool)) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	old, ok := t.items[key]
	live := ok && !old.Expired(now)
	if !live {
		var zero V
		old.Value = zero
	}

	next, store := fn(old.Value, live)
	if !store {
		return old.Value, false
	}

	exp := t.expiry(ttl)
	if ttl == KeepTTL {
		exp = time.Time{}
		if live {
			exp = old.ExpiresAt
		} else if t.defaultTTL > 0 {
			exp = now.Add(t.defaultTTL)
		}
	}
	t.items[key] = Entry[V]{Value: next, ExpiresAt: exp}
	return next, true
}

// Delete removes key and reports whether a live entry was removed.
func (t *TTL[K, V]) Delete(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[key]
	if !ok {
		return false
	}
	delete(t.items, key)
	return !e.Expired(t.now())
}

// Keys returns the keys of all unexpired entries. It is linear in the number
// of stored entries and intended for maintenance paths only.
func (t *TTL[K, V]) Keys() []K {
	now := t.now()
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]K, 0, len(t.items))
	for k, e := range t.items {
		if !e.Expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of unexpired entries.
func (t *TTL[K, V]) Len() int {
	return len(t.Keys())
}

// Sweep removes expired entries and returns how many were dropped.
func (t *TTL[K, V]) Sweep() int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, e := range t.items {
		if e.Expired(now) {
			delete(t.items, k)
			n++
		}
	}
	return n
}

// Close stops the janitor, if one was started.
func (t *TTL[K, V]) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *TTL[K, V]) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return t.now().Add(ttl)
}

func (t *TTL[K, V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
