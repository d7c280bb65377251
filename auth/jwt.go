package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/daffatgi02/valo-apps-backend/errs"
)

// DefaultTokenTTL is how long an issued API token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Claims identify the player an API token was issued for.
type Claims struct {
	PlayerID string `json:"userId"`
	Username string `json:"username"`
	Region   string `json:"region"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 API tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTokenClock replaces time.Now for issuing and expiry checks.
func WithTokenClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer creates an Issuer. A non-positive ttl means [DefaultTokenTTL].
func NewIssuer(secret []byte, ttl time.Duration, opts ...IssuerOption) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	i := &Issuer{secret: secret, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(i)
	}
	return i
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for c.
func (i *Issuer) Issue(c Claims) (string, error) {
	now := i.now()
	c.Subject = c.PlayerID
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
}

// Verify parses token and checks its signature and expiry. Every failure
// wraps errs.ErrUnauthorized.
func (i *Issuer) Verify(token string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("token expired: %w", errs.ErrUnauthorized)
		}
		return Claims{}, fmt.Errorf("invalid token: %w: %w", errs.ErrUnauthorized, err)
	}
	if c.PlayerID == "" {
		return Claims{}, fmt.Errorf("token has no userId: %w", errs.ErrUnauthorized)
	}
	return c, nil
}
