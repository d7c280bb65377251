// Package derived caches per-player data fetched from upstream on demand.
//
// A Cache never serves an expired value: when an entry is missing or stale
// the supplied fetcher runs, and its error is returned as-is. Every stored
// key is recorded against the player that owns it so a whole player can be
// dropped without scanning the cache.
package derived

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/daffatgi02/valo-apps-backend/cache"
)

// Fetcher loads a value from upstream.
type Fetcher[V any] func(ctx context.Context) (V, error)

// OwnerFunc names the player a stored value belongs to.
type OwnerFunc[V any] func(key string, value V) string

// Cache is a TTL cache with fetch-on-miss and a player → keys index.
type Cache[V any] struct {
	name  string
	store *cache.TTL[string, V]
	owner OwnerFunc[V]
	now   func() time.Time
	log   zerolog.Logger
	group singleflight.Group

	mu     sync.Mutex
	byUser map[string]map[string]struct{}
	owners map[string]string

	// epoch advances on every InvalidatePlayer. While fetches are in flight,
	// invalidated holds the epoch at which each player was last dropped so a
	// fetch that started earlier does not store its result.
	epoch       uint64
	inflight    int
	invalidated map[string]uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	clock func() time.Time
	stats cache.Stats
	sweep time.Duration
	log   zerolog.Logger
}

// WithClock overrides time.Now for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithStats reports cache hits and misses.
func WithStats(s cache.Stats) Option {
	return func(o *options) { o.stats = s }
}

// WithSweepInterval runs Sweep in the background at the given interval.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweep = d }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New creates a Cache whose entries live for ttl. owner maps a stored entry
// to its player; nil means the key itself is the player ID.
func New[V any](name string, ttl time.Duration, owner OwnerFunc[V], opts ...Option) *Cache[V] {
	o := options{clock: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if owner == nil {
		owner = func(key string, _ V) string { return key }
	}
	c := &Cache[V]{
		name:        name,
		store:       cache.NewTTL[string, V](name, cache.WithDefaultTTL(ttl), cache.WithClock(o.clock), cache.WithStats(o.stats)),
		owner:       owner,
		now:         o.clock,
		log:         o.log.With().Str("cache", name).Logger(),
		byUser:      make(map[string]map[string]struct{}),
		owners:      make(map[string]string),
		invalidated: make(map[string]uint64),
		stop:        make(chan struct{}),
	}
	if o.sweep > 0 {
		go c.janitor(o.sweep)
	}
	return c
}

// Get returns the fresh value for key, if any.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.store.Get(key)
}

// GetOrFetch returns the fresh value for key or calls fetch, stores its
// result and returns it. Concurrent misses on the same key share one fetch.
// A failed fetch stores nothing and its error is returned unchanged.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch Fetcher[V]) (V, error) {
	if v, ok := c.store.Get(key); ok {
		return v, nil
	}

	res, err, shared := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have stored the value already.
		if e, ok := c.store.Peek(key); ok && !e.Expired(c.now()) {
			return e.Value, nil
		}
		start := c.beginFetch()
		defer c.endFetch()
		// Shared by every waiter, so not bound to the first caller's cancellation.
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.storeFetched(key, v, start)
		return v, nil
	})
	if err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("fetch failed")
		var zero V
		return zero, err
	}
	if shared {
		c.log.Debug().Str("key", key).Msg("shared in-flight fetch")
	}
	return res.(V), nil
}

// Set stores value under key and links it to its owner.
func (c *Cache[V]) Set(key string, value V) {
	owner := c.owner(key, value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(key, value)
	c.linkLocked(key, owner)
}

// Invalidate drops a single key.
func (c *Cache[V]) Invalidate(key string) {
	c.store.Delete(key)
	c.mu.Lock()
	c.unlinkLocked(key)
	c.mu.Unlock()
}

// InvalidatePlayer drops every entry owned by playerID. It never fails; the
// error return satisfies the session store's invalidation hook.
func (c *Cache[V]) InvalidatePlayer(_ context.Context, playerID string) error {
	c.mu.Lock()
	c.epoch++
	if c.inflight > 0 {
		c.invalidated[playerID] = c.epoch
	}
	keys := c.byUser[playerID]
	delete(c.byUser, playerID)
	for k := range keys {
		delete(c.owners, k)
	}
	c.mu.Unlock()

	n := 0
	for k := range keys {
		if c.store.Delete(k) {
			n++
		}
	}
	c.log.Debug().Str("player", playerID).Int("removed", n).Msg("player entries invalidated")
	return nil
}

// Owned returns the live keys linked to playerID.
func (c *Cache[V]) Owned(playerID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k := range c.byUser[playerID] {
		if c.fresh(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int { return c.store.Len() }

// Sweep removes expired entries together with their owner links and
// returns how many entries were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	for k := range c.owners {
		if !c.fresh(k) {
			c.unlinkLocked(k)
		}
	}
	c.mu.Unlock()
	return c.store.Sweep()
}

// Close stops the background sweep, if any.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.store.Close()
}

func (c *Cache[V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug().Int("removed", n).Msg("expired entries swept")
			}
		}
	}
}

func (c *Cache[V]) beginFetch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight++
	return c.epoch
}

func (c *Cache[V]) endFetch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 {
		clear(c.invalidated)
	}
}

// storeFetched stores a value fetched since epoch start unless its owner was
// invalidated while the fetch was running.
func (c *Cache[V]) storeFetched(key string, value V, start uint64) {
	owner := c.owner(key, value)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidated[owner] > start {
		c.log.Debug().Str("key", key).Str("player", owner).Msg("player invalidated during fetch, result not stored")
		return
	}
	c.store.Set(key, value)
	c.linkLocked(key, owner)
}

func (c *Cache[V]) fresh(key string) bool {
	e, ok := c.store.Peek(key)
	return ok && !e.Expired(c.now())
}

func (c *Cache[V]) linkLocked(key, playerID string) {
	if prev, ok := c.owners[key]; ok && prev == playerID {
		return
	}
	c.unlinkLocked(key)
	if playerID == "" {
		return
	}
	keys := c.byUser[playerID]
	if keys == nil {
		keys = make(map[string]struct{})
		c.byUser[playerID] = keys
	}
	// Keys that expired since they were linked are no longer worth tracking.
	for k := range keys {
		if !c.fresh(k) {
			delete(keys, k)
			delete(c.owners, k)
		}
	}
	keys[key] = struct{}{}
	c.owners[key] = playerID
}

func (c *Cache[V]) unlinkLocked(key string) {
	prev, ok := c.owners[key]
	if !ok {
		return
	}
	delete(c.owners, key)
	if keys := c.byUser[prev]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byUser, prev)
		}
	}
}
