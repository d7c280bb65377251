package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/daffatgi02/valo-apps-backend/cache"
)

// dataset is one catalog dataset stored under a single key. Its TTL store has
// no janitor so an expired value stays available as the stale tier.
type dataset[T any] struct {
	name     string
	store    *cache.TTL[string, T]
	now      func() time.Time
	fetch    func(context.Context) (T, error)
	timeout  time.Duration
	fallback *T
	group    singleflight.Group
}

func newDataset[T any](name string, cfg config, ttl, timeout time.Duration, fetch func(context.Context) (T, error), fallback *T) *dataset[T] {
	return &dataset[T]{
		name: name,
		store: cache.NewTTL[string, T]("catalog_"+name,
			cache.WithDefaultTTL(ttl),
			cache.WithClock(cfg.clock),
			cache.WithStats(cfg.stats),
		),
		now:      cfg.clock,
		fetch:    fetch,
		timeout:  timeout,
		fallback: fallback,
	}
}

func (d *dataset[T]) read(ctx context.Context, log zerolog.Logger) (T, Freshness, error) {
	if v, ok := d.store.Get(d.name); ok {
		return v, Fresh, nil
	}

	v, err, _ := d.group.Do(d.name, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		v, err := d.fetch(fctx)
		if err != nil {
			return nil, err
		}
		d.store.Set(d.name, v)
		return v, nil
	})
	if err == nil {
		log.Debug().Str("dataset", d.name).Msg("catalog dataset fetched")
		return v.(T), Fetched, nil
	}

	if e, ok := d.store.Peek(d.name); ok {
		log.Warn().Err(err).
			Str("dataset", d.name).
			Str("freshness", Stale.String()).
			Time("expired_at", e.ExpiresAt).
			Msg("serving stale catalog data")
		return e.Value, Stale, nil
	}
	if d.fallback != nil {
		log.Warn().Err(err).
			Str("dataset", d.name).
			Str("freshness", Fallback.String()).
			Msg("serving fallback catalog data")
		return *d.fallback, Fallback, nil
	}
	log.Error().Err(err).Str("dataset", d.name).Msg("catalog dataset unavailable")
	var zero T
	return zero, Fresh, fmt.Errorf("catalog %s: %w", d.name, err)
}

func (d *dataset[T]) present() bool {
	e, ok := d.store.Peek(d.name)
	return ok && !e.Expired(d.now())
}
