// Package catalog caches the shared game catalog: skins, bundles and the
// client version.
//
// Each dataset is read in tiers: a fresh cached value, else a value fetched
// now, else the last cached value past its TTL, else (version only) a
// built-in fallback. Only skins and bundles can fail, and only when nothing
// was ever cached for them.
//
// A background loader fills all three datasets after a short start delay. If
// that load fails the cache is Degraded and the load is retried on a fixed
// interval until it succeeds.
package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/daffatgi02/valo-apps-backend/cache"
	"github.com/daffatgi02/valo-apps-backend/schedule"
)

// Default timings.
const (
	DefaultTTL            = 24 * time.Hour
	DefaultVersionTTL     = time.Hour
	DefaultStartDelay     = time.Second
	DefaultRetryInterval  = 30 * time.Second
	DefaultTimeout        = 15 * time.Second
	DefaultVersionTimeout = 10 * time.Second
)

// Source fetches catalog datasets from upstream.
type Source interface {
	Skins(ctx context.Context) ([]Skin, error)
	Bundles(ctx context.Context) ([]Bundle, error)
	Version(ctx context.Context) (Version, error)
}

// Cache is the shared catalog cache and its loader.
type Cache struct {
	skins   *dataset[[]Skin]
	bundles *dataset[[]Bundle]
	version *dataset[Version]

	state atomic.Int32
	task  *schedule.Task
	log   zerolog.Logger

	mu       sync.Mutex
	watchers []func(State)
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	ttl            time.Duration
	versionTTL     time.Duration
	timeout        time.Duration
	versionTimeout time.Duration
	startDelay     time.Duration
	retry          time.Duration
	timer          schedule.AfterFunc
	clock          func() time.Time
	stats          cache.Stats
	log            zerolog.Logger
}

// WithTTL sets the TTL of the skins and bundles datasets.
func WithTTL(d time.Duration) Option { return func(c *config) { c.ttl = d } }

// WithVersionTTL sets the TTL of the version dataset.
func WithVersionTTL(d time.Duration) Option { return func(c *config) { c.versionTTL = d } }

// WithTimeouts bounds each upstream fetch.
func WithTimeouts(catalog, version time.Duration) Option {
	return func(c *config) {
		c.timeout = catalog
		c.versionTimeout = version
	}
}

// WithStartDelay sets how long Start waits before the first load.
func WithStartDelay(d time.Duration) Option { return func(c *config) { c.startDelay = d } }

// WithRetryInterval sets the delay between failed loads.
func WithRetryInterval(d time.Duration) Option { return func(c *config) { c.retry = d } }

// WithTimer replaces the loader's timer source.
func WithTimer(after schedule.AfterFunc) Option { return func(c *config) { c.timer = after } }

// WithClock overrides time.Now for dataset expiry.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithStats reports dataset cache hits and misses.
func WithStats(s cache.Stats) Option { return func(c *config) { c.stats = s } }

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option { return func(c *config) { c.log = log } }

// New creates a Cache reading from src. It does not fetch anything until a
// dataset is read or Start is called.
func New(src Source, opts ...Option) *Cache {
	cfg := config{
		ttl:            DefaultTTL,
		versionTTL:     DefaultVersionTTL,
		timeout:        DefaultTimeout,
		versionTimeout: DefaultVersionTimeout,
		startDelay:     DefaultStartDelay,
		retry:          DefaultRetryInterval,
		clock:          time.Now,
		log:            zerolog.Nop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	log := cfg.log.With().Str("component", "catalog").Logger()
	c := &Cache{log: log}
	c.skins = newDataset("skins", cfg, cfg.ttl, cfg.timeout, src.Skins, nil)
	c.bundles = newDataset("bundles", cfg, cfg.ttl, cfg.timeout, src.Bundles, nil)
	fb := fallbackVersion()
	c.version = newDataset("version", cfg, cfg.versionTTL, cfg.versionTimeout, src.Version, &fb)
	c.task = schedule.New("catalog-load", c.Load,
		schedule.WithDelay(cfg.startDelay),
		schedule.WithRetryInterval(cfg.retry),
		schedule.WithTimer(cfg.timer),
		schedule.WithLogger(log),
	)
	return c
}

// Start schedules the initial load in the background and returns at once.
func (c *Cache) Start(ctx context.Context) {
	c.task.Start(ctx)
}

// Stop cancels any pending load and waits for the loader to exit.
func (c *Cache) Stop() {
	c.task.Stop()
}

// Load fetches all three datasets concurrently. The cache becomes Ready when
// skins and bundles can both be produced and Degraded otherwise; the version
// always has a value.
func (c *Cache) Load(ctx context.Context) error {
	c.setState(Loading)
	c.log.Info().Msg("loading catalog")

	var g errgroup.Group
	g.Go(func() error {
		_, _, err := c.Skins(ctx)
		return err
	})
	g.Go(func() error {
		_, _, err := c.Bundles(ctx)
		return err
	})
	g.Go(func() error {
		c.Version(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		c.setState(Degraded)
		c.log.Error().Err(err).Msg("catalog load failed")
		return err
	}
	c.setState(Ready)
	c.log.Info().Msg("catalog loaded")
	return nil
}

// Skins returns the skin definitions in catalog order.
func (c *Cache) Skins(ctx context.Context) ([]Skin, Freshness, error) {
	return c.skins.read(ctx, c.log)
}

// Bundles returns the bundle definitions in catalog order.
func (c *Cache) Bundles(ctx context.Context) ([]Bundle, Freshness, error) {
	return c.bundles.read(ctx, c.log)
}

// Version returns the client version. It never fails.
func (c *Cache) Version(ctx context.Context) (Version, Freshness) {
	v, f, _ := c.version.read(ctx, c.log)
	return v, f
}

// Snapshot returns the skins and bundles for the store join, or nil while
// the catalog is not Ready.
func (c *Cache) Snapshot(ctx context.Context) *Snapshot {
	if c.State() != Ready {
		return nil
	}
	skins, _, err := c.Skins(ctx)
	if err != nil {
		return nil
	}
	bundles, _, err := c.Bundles(ctx)
	if err != nil {
		return nil
	}
	return &Snapshot{Skins: skins, Bundles: bundles}
}

// Health reports loader state and which datasets hold a fresh value.
func (c *Cache) Health() Health {
	s := c.State()
	return Health{
		Initialized: s == Ready,
		State:       s,
		Datasets: Presence{
			Skins:   c.skins.present(),
			Bundles: c.bundles.present(),
			Version: c.version.present(),
		},
	}
}

// State returns the loader state.
func (c *Cache) State() State {
	return State(c.state.Load())
}

// OnStateChange registers fn to be called after every state transition.
func (c *Cache) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
}

func (c *Cache) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.mu.Lock()
	watchers := append([]func(State){}, c.watchers...)
	c.mu.Unlock()
	for _, fn := range watchers {
		fn(s)
	}
}
