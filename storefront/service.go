package storefront

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/cache"
	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/errs"
	"github.com/daffatgi02/valo-apps-backend/player"
)

// DefaultMaxTTL caps how long a raw offer is cached.
const DefaultMaxTTL = time.Hour

// Fetcher loads a player's raw store offer from upstream.
type Fetcher interface {
	Storefront(ctx context.Context, creds player.Credentials, clientVersion string) (Offer, error)
}

// Catalog is the part of the catalog cache the service needs.
type Catalog interface {
	Version(ctx context.Context) (catalog.Version, catalog.Freshness)
	Snapshot(ctx context.Context) *catalog.Snapshot
}

// Service serves daily store listings. Raw offers are cached per player
// until the store rotates; the catalog join is recomputed on every call.
type Service struct {
	fetch  Fetcher
	cat    Catalog
	offers cache.Cache
	maxTTL time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxTTL caps the offer cache TTL.
func WithMaxTTL(d time.Duration) ServiceOption {
	return func(s *Service) { s.maxTTL = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// NewService creates a Service caching raw offers in offers.
func NewService(fetch Fetcher, cat Catalog, offers cache.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		fetch:  fetch,
		cat:    cat,
		offers: offers,
		maxTTL: DefaultMaxTTL,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func offerKey(playerID string) string {
	return "store:" + playerID
}

// Daily returns the player's enriched daily store.
func (s *Service) Daily(ctx context.Context, creds player.Credentials) (Listing, error) {
	raw, err := s.offers.GetOrSet(ctx, offerKey(creds.PlayerID), func(ctx context.Context) ([]byte, time.Duration, error) {
		v, fresh := s.cat.Version(ctx)
		if fresh.Degraded() {
			s.log.Warn().Str("freshness", fresh.String()).Str("version", v.Version).Msg("store fetch using degraded client version")
		}
		offer, err := s.fetch.Storefront(ctx, creds, v.Version)
		if err != nil {
			return nil, 0, err
		}
		b, err := json.Marshal(offer)
		if err != nil {
			return nil, 0, err
		}
		return b, s.ttlFor(offer), nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("player", creds.PlayerID).Msg("daily store fetch failed")
		return Listing{}, err
	}

	var offer Offer
	if err := json.Unmarshal(raw, &offer); err != nil {
		_ = s.offers.Delete(ctx, offerKey(creds.PlayerID))
		return Listing{}, &errs.UpstreamError{Op: "storefront", Kind: errs.ErrMalformedResponse, Err: err}
	}

	snap := s.cat.Snapshot(ctx)
	if snap == nil {
		s.log.Warn().Str("player", creds.PlayerID).Msg("catalog not ready, returning raw store")
	}
	return Enrich(offer, snap), nil
}

// InvalidatePlayer drops the cached offer for playerID. An offer load
// already in flight finishes for its callers but is not cached.
func (s *Service) InvalidatePlayer(ctx context.Context, playerID string) error {
	return s.offers.Delete(ctx, offerKey(playerID))
}

// ttlFor caches an offer until it expires, capped at maxTTL.
func (s *Service) ttlFor(o Offer) time.Duration {
	ttl := o.Expires.Sub(s.now())
	if s.maxTTL > 0 && ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	return ttl
}
