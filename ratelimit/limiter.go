// Package ratelimit provides token-bucket limiters backed by
// golang.org/x/time/rate: a single shared gate and a per-client variant
// keyed by caller address.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/daffatgi02/valo-apps-backend/cache"
)

// Limiter wraps a token-bucket limiter that decides whether an incoming
// request should be allowed.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps requests per second with the
// given burst size.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// PerWindow creates a Limiter allowing n requests per window, all of which
// may arrive at once.
func PerWindow(n int, window time.Duration) *Limiter {
	return NewLimiter(perSecond(n, window), n)
}

// Allow reports whether a single request may proceed.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

func perSecond(n int, window time.Duration) float64 {
	if window <= 0 {
		return float64(n)
	}
	return float64(n) / window.Seconds()
}

// Keyed keeps one token bucket per key. A bucket left unused for the idle
// period is dropped and starts full on the next request.
type Keyed struct {
	rps     float64
	burst   int
	idle    time.Duration
	buckets *cache.TTL[string, *rate.Limiter]
}

// KeyedOption configures a Keyed limiter.
type KeyedOption func(*keyedConfig)

type keyedConfig struct {
	now   func() time.Time
	sweep bool
}

// WithKeyedClock overrides time.Now for bucket expiry.
func WithKeyedClock(now func() time.Time) KeyedOption {
	return func(c *keyedConfig) { c.now = now }
}

// WithoutSweeper disables the background removal of idle buckets.
func WithoutSweeper() KeyedOption {
	return func(c *keyedConfig) { c.sweep = false }
}

// NewKeyed allows n requests per window for every key. Buckets idle for
// longer than the window are forgotten.
func NewKeyed(name string, n int, window time.Duration, opts ...KeyedOption) *Keyed {
	cfg := keyedConfig{now: time.Now, sweep: true}
	for _, o := range opts {
		o(&cfg)
	}
	idle := max(window, time.Second)
	ttlOpts := []cache.TTLOption{cache.WithDefaultTTL(idle), cache.WithClock(cfg.now)}
	if cfg.sweep {
		ttlOpts = append(ttlOpts, cache.WithJanitor(idle))
	}
	return &Keyed{
		rps:     perSecond(n, window),
		burst:   n,
		idle:    idle,
		buckets: cache.NewTTL[string, *rate.Limiter](name, ttlOpts...),
	}
}

// Allow reports whether one more request for key may proceed.
func (k *Keyed) Allow(key string) bool {
	lim, _ := k.buckets.Update(key, k.idle, func(old *rate.Limiter, live bool) (*rate.Limiter, bool) {
		if live {
			return old, true
		}
		return rate.NewLimiter(rate.Limit(k.rps), k.burst), true
	})
	return lim.Allow()
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int { return k.buckets.Len() }

// Close stops the background sweeper.
func (k *Keyed) Close() { k.buckets.Close() }
