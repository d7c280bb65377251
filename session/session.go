// Package session keeps one authenticated session per player.
//
// Reads slide the idle timeout: every successful Get stamps LastActivity and
// restarts the TTL. An optional maximum lifetime, measured from CreatedAt,
// caps how far the TTL can be pushed. Removing a session cascades to every
// registered Invalidator.
package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/cache"
	"github.com/daffatgi02/valo-apps-backend/errs"
	"github.com/daffatgi02/valo-apps-backend/player"
)

// DefaultTTL is the idle timeout used when none is configured.
const DefaultTTL = 24 * time.Hour

// Record is an authenticated session.
type Record struct {
	PlayerID          string
	AccessToken       string
	IDToken           string
	EntitlementsToken string
	TokenType         string
	Username          string
	GameName          string
	TagLine           string
	Region            string
	Balance           *player.Balance
	AccountXP         *player.AccountXP
	CreatedAt         time.Time
	LastActivity      time.Time
}

// Credentials returns what player-scoped upstream calls need.
func (r Record) Credentials() player.Credentials {
	return player.Credentials{
		PlayerID:          r.PlayerID,
		Region:            r.Region,
		AccessToken:       r.AccessToken,
		EntitlementsToken: r.EntitlementsToken,
	}
}

// Summary is the token-free view of a session used for account listings.
type Summary struct {
	Username     string    `json:"username"`
	GameName     string    `json:"gameName"`
	TagLine      string    `json:"tagLine"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Invalidator drops data derived from a player's session.
type Invalidator interface {
	InvalidatePlayer(ctx context.Context, playerID string) error
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, playerID string) error

// InvalidatePlayer calls f.
func (f InvalidatorFunc) InvalidatePlayer(ctx context.Context, playerID string) error {
	return f(ctx, playerID)
}

// Store holds sessions keyed by player ID.
type Store struct {
	items       *cache.TTL[string, Record]
	ttl         time.Duration
	maxLifetime time.Duration
	now         func() time.Time
	cascade     []Invalidator
	sweep       time.Duration
	log         zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the idle timeout. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithMaxLifetime caps a session's total age. Zero means unbounded.
func WithMaxLifetime(d time.Duration) Option {
	return func(s *Store) { s.maxLifetime = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInvalidators registers caches to clear when a session is removed.
func WithInvalidators(inv ...Invalidator) Option {
	return func(s *Store) { s.cascade = append(s.cascade, inv...) }
}

// WithSweepInterval drops expired sessions in the background.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweep = d }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New creates a Store.
func New(opts ...Option) *Store {
	s := &Store{
		ttl: DefaultTTL,
		now: time.Now,
		log: zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	ttlOpts := []cache.TTLOption{cache.WithClock(s.now)}
	if s.sweep > 0 {
		ttlOpts = append(ttlOpts, cache.WithJanitor(s.sweep))
	}
	s.items = cache.NewTTL[string, Record]("session", ttlOpts...)
	return s
}

// Put upserts the session for playerID. CreatedAt is kept from a live
// session and stamped otherwise; LastActivity is always refreshed.
func (s *Store) Put(playerID string, rec Record) Record {
	now := s.now()
	created := now
	if prev, ok := s.items.Get(playerID); ok {
		created = prev.CreatedAt
	}
	ttl, ok := s.ttlFor(created, now)
	if !ok {
		created = now
		ttl, _ = s.ttlFor(now, now)
	}

	stored, _ := s.items.Update(playerID, ttl, func(old Record, live bool) (Record, bool) {
		rec.PlayerID = playerID
		rec.CreatedAt = now
		if live && old.CreatedAt.Equal(created) {
			rec.CreatedAt = old.CreatedAt
		}
		rec.LastActivity = now
		return rec, true
	})
	s.log.Debug().Str("player", playerID).Msg("session stored")
	return stored
}

// Get returns the session for playerID and refreshes its LastActivity. It
// returns errs.ErrNotFound when there is no live session.
func (s *Store) Get(ctx context.Context, playerID string) (Record, error) {
	now := s.now()
	cur, ok := s.items.Get(playerID)
	if !ok {
		return Record{}, errs.ErrNotFound
	}
	ttl, ok := s.ttlFor(cur.CreatedAt, now)
	if !ok {
		s.log.Debug().Str("player", playerID).Msg("session reached max lifetime")
		_ = s.Remove(ctx, playerID)
		return Record{}, errs.ErrNotFound
	}

	rec, ok := s.items.Update(playerID, ttl, func(old Record, live bool) (Record, bool) {
		if !live {
			return old, false
		}
		old.LastActivity = now
		return old, true
	})
	if !ok {
		return Record{}, errs.ErrNotFound
	}
	return rec, nil
}

// Remove deletes the session for playerID and clears every registered
// Invalidator for that player. Invalidation is best effort: failures are
// logged, never returned. It returns errs.ErrNotFound when there was no
// live session, after the cascade has run.
func (s *Store) Remove(ctx context.Context, playerID string) error {
	removed := s.items.Delete(playerID)
	for _, inv := range s.cascade {
		if err := inv.InvalidatePlayer(ctx, playerID); err != nil {
			s.log.Warn().Err(err).Str("player", playerID).Msg("session cascade failed")
		}
	}
	if !removed {
		return errs.ErrNotFound
	}
	s.log.Debug().Str("player", playerID).Msg("session removed")
	return nil
}

// ListAll returns the token-free view of every live session, keyed by
// player ID. It does not touch LastActivity.
func (s *Store) ListAll() map[string]Summary {
	now := s.now()
	out := make(map[string]Summary)
	for _, id := range s.items.Keys() {
		e, ok := s.items.Peek(id)
		if !ok || e.Expired(now) {
			continue
		}
		r := e.Value
		out[id] = Summary{
			Username:     r.Username,
			GameName:     r.GameName,
			TagLine:      r.TagLine,
			LastActivity: r.LastActivity,
			CreatedAt:    r.CreatedAt,
		}
	}
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int { return s.items.Len() }

// Sweep drops expired sessions and returns how many were removed. Expired
// sessions are not cascaded; their derived entries age out on their own.
func (s *Store) Sweep() int { return s.items.Sweep() }

// Close stops the background sweep, if any.
func (s *Store) Close() { s.items.Close() }

// ttlFor returns the TTL to apply to a session created at created. ok is
// false once the session has outlived its maximum lifetime.
func (s *Store) ttlFor(created, now time.Time) (time.Duration, bool) {
	ttl := s.ttl
	if s.maxLifetime <= 0 {
		return ttl, true
	}
	left := created.Add(s.maxLifetime).Sub(now)
	if left <= 0 {
		return 0, false
	}
	if ttl <= 0 || left < ttl {
		ttl = left
	}
	return ttl, true
}
