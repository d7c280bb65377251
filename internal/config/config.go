// Package config loads the server configuration from VALO_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix.
const Prefix = "VALO"

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// RateLimit is "<requests>/<window>", e.g. "100/15m".
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Decode implements envconfig.Decoder.
func (r *RateLimit) Decode(value string) error {
	n, w, ok := strings.Cut(value, "/")
	if !ok {
		return fmt.Errorf("rate limit %q: want <requests>/<window>", value)
	}
	reqs, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || reqs < 0 {
		return fmt.Errorf("rate limit %q: bad request count", value)
	}
	window, err := time.ParseDuration(strings.TrimSpace(w))
	if err != nil || window <= 0 {
		return fmt.Errorf("rate limit %q: bad window", value)
	}
	r.Requests, r.Window = reqs, window
	return nil
}

func (r RateLimit) String() string {
	return strconv.Itoa(r.Requests) + "/" + r.Window.String()
}

// Config holds the configuration for the server.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"3000"`
	GRPCPort int `envconfig:"GRPC_PORT" default:"9090"`

	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SessionMaxLifetime time.Duration `envconfig:"SESSION_MAX_LIFETIME" default:"0"`
	BalanceTTL         time.Duration `envconfig:"BALANCE_TTL" default:"5m"`
	ProfileTTL         time.Duration `envconfig:"PROFILE_TTL" default:"1h"`
	CatalogTTL         time.Duration `envconfig:"CATALOG_TTL" default:"24h"`
	VersionTTL         time.Duration `envconfig:"VERSION_TTL" default:"1h"`
	StoreTTL           time.Duration `envconfig:"STORE_TTL" default:"1h"`
	StoreCacheItems    int64         `envconfig:"STORE_CACHE_ITEMS" default:"10000"`

	// Sweep intervals drop expired sessions and derived entries from memory.
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"10m"`
	CacheSweepInterval   time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"10m"`

	CatalogStartDelay    time.Duration `envconfig:"CATALOG_START_DELAY" default:"1s"`
	CatalogRetryInterval time.Duration `envconfig:"CATALOG_RETRY_INTERVAL" default:"30s"`
	CatalogTimeout       time.Duration `envconfig:"CATALOG_TIMEOUT" default:"15s"`
	PlayerTimeout        time.Duration `envconfig:"PLAYER_TIMEOUT" default:"10s"`
	RequestTimeout       time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	CatalogBaseURL  string `envconfig:"CATALOG_BASE_URL" default:"https://valorant-api.com"`
	AuthBaseURL     string `envconfig:"AUTH_BASE_URL" default:"https://auth.riotgames.com"`
	EntitlementsURL string `envconfig:"ENTITLEMENTS_URL" default:"https://entitlements.auth.riotgames.com/api/token/v1"`
	PDURLTemplate   string `envconfig:"PD_URL_TEMPLATE" default:"https://pd.{region}.a.pvp.net"`
	Language        string `envconfig:"LANGUAGE" default:"en-US"`

	CORSOrigins      []string  `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:5500,http://localhost:5500"`
	RateLimitGeneral RateLimit `envconfig:"RATE_LIMIT_GENERAL" default:"100/15m"`
	RateLimitAuth    RateLimit `envconfig:"RATE_LIMIT_AUTH" default:"20/15m"`
	BlockedCIDRs     []string  `envconfig:"BLOCKED_CIDRS"`
	TrustedProxies   []string  `envconfig:"TRUSTED_PROXIES"`

	Tracing string `envconfig:"TRACING" default:"none"`
}

// devSecret signs tokens in development when no secret is configured.
const devSecret = "valo-development-secret"

// Validate checks cross-field constraints and fills the development secret.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		return fmt.Errorf("unsupported ENVIRONMENT: %s", c.Environment)
	}
	if c.JWTSecret == "" {
		if c.Environment == EnvProduction {
			return errors.New("JWT_SECRET is required in production")
		}
		c.JWTSecret = devSecret
	}
	if !strings.Contains(c.PDURLTemplate, "{region}") {
		return fmt.Errorf("PD_URL_TEMPLATE %q has no {region} placeholder", c.PDURLTemplate)
	}
	switch c.Tracing {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("unsupported TRACING: %s", c.Tracing)
	}
	if c.SessionMaxLifetime < 0 {
		return errors.New("SESSION_MAX_LIFETIME must not be negative")
	}
	if c.SessionSweepInterval < 0 || c.CacheSweepInterval < 0 {
		return errors.New("sweep intervals must not be negative")
	}
	if c.StoreCacheItems <= 0 {
		return errors.New("STORE_CACHE_ITEMS must be positive")
	}
	return nil
}

// New creates a new Config by parsing VALO_* environment variables.
// Example: VALO_HTTP_PORT, VALO_SESSION_TTL
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns a fixed configuration pointing at no real upstream.
func NewForTesting() *Config {
	return &Config{
		Environment:          EnvTesting,
		LogLevel:             "debug",
		HTTPPort:             3000,
		GRPCPort:             9090,
		JWTSecret:            "test-secret",
		JWTTTL:               24 * time.Hour,
		SessionTTL:           24 * time.Hour,
		BalanceTTL:           5 * time.Minute,
		ProfileTTL:           time.Hour,
		CatalogTTL:           24 * time.Hour,
		VersionTTL:           time.Hour,
		StoreTTL:             time.Hour,
		StoreCacheItems:      1000,
		SessionSweepInterval: time.Minute,
		CacheSweepInterval:   time.Minute,
		CatalogStartDelay:    time.Millisecond,
		CatalogRetryInterval: 30 * time.Second,
		CatalogTimeout:       time.Second,
		PlayerTimeout:        time.Second,
		RequestTimeout:       5 * time.Second,
		CatalogBaseURL:       "http://127.0.0.1:0",
		AuthBaseURL:          "http://127.0.0.1:0",
		EntitlementsURL:      "http://127.0.0.1:0/api/token/v1",
		PDURLTemplate:        "http://127.0.0.1:0/{region}",
		Language:             "en-US",
		RateLimitGeneral:     RateLimit{Requests: 1000, Window: time.Minute},
		RateLimitAuth:        RateLimit{Requests: 1000, Window: time.Minute},
		Tracing:              "none",
	}
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }

// Addr returns the HTTP listen address.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.HTTPPort) }

// GRPCAddr returns the admin gRPC listen address.
func (c *Config) GRPCAddr() string { return ":" + strconv.Itoa(c.GRPCPort) }
