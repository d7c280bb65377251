// Package upstream is the HTTP client for the game's public catalog API, the
// account service and the per-region player data service.
//
// Every call runs with a bounded timeout, is retried on transient failures,
// goes through a circuit breaker per upstream group and is traced. Failures
// come back as *errs.UpstreamError so callers can classify them with
// errors.Is.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/breaker"
	"github.com/daffatgi02/valo-apps-backend/errs"
	"github.com/daffatgi02/valo-apps-backend/retry"
	"github.com/daffatgi02/valo-apps-backend/tracing"
)

// Upstream groups. Each has its own circuit breaker.
const (
	GroupCatalog = "catalog"
	GroupAuth    = "auth"
	GroupPD      = "pd"
)

// UserAgent is sent on every request.
const UserAgent = "ValorantStoreAPI/1.0.0"

// DefaultClientPlatform is the base64 JSON platform descriptor the player
// data service expects in X-Riot-ClientPlatform.
const DefaultClientPlatform = "ew0KCSJwbGF0Zm9ybVR5cGUiOiAiUEMiLA0KCSJwbGF0Zm9ybU9TIjogIldpbmRvd3MiLA0KCSJwbGF0Zm9ybU9TVmVyc2lvbiI6ICIxMC4wLjE5MDQyLjEuMjU2LjY0Yml0IiwNCgkicGxhdGZvcm1DaGlwc2V0IjogIlVua25vd24iDQp9"

// Observer receives per-call telemetry. *metrics.Metrics implements it.
type Observer interface {
	ObserveUpstream(op string, err error, d time.Duration)
	Retry(op string)
	BreakerChanged(group string, from, to breaker.State)
}

type noopObserver struct{}

func (noopObserver) ObserveUpstream(string, error, time.Duration)        {}
func (noopObserver) Retry(string)                                        {}
func (noopObserver) BreakerChanged(string, breaker.State, breaker.State) {}

// Config configures a Client. Zero values fall back to the public
// endpoints and the default timeouts.
type Config struct {
	CatalogBaseURL  string
	AuthBaseURL     string
	EntitlementsURL string
	// PDURLTemplate is the player data base URL with a {region} placeholder.
	PDURLTemplate  string
	Language       string
	ClientPlatform string

	CatalogTimeout time.Duration
	PlayerTimeout  time.Duration

	Retry   retry.Config
	Breaker breaker.Config

	Tracing  *tracing.Config
	Observer Observer
	Logger   zerolog.Logger

	// Now stamps store offer expiry; defaults to time.Now.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.CatalogBaseURL == "" {
		c.CatalogBaseURL = "https://valorant-api.com"
	}
	if c.AuthBaseURL == "" {
		c.AuthBaseURL = "https://auth.riotgames.com"
	}
	if c.EntitlementsURL == "" {
		c.EntitlementsURL = "https://entitlements.auth.riotgames.com/api/token/v1"
	}
	if c.PDURLTemplate == "" {
		c.PDURLTemplate = "https://pd.{region}.a.pvp.net"
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.ClientPlatform == "" {
		c.ClientPlatform = DefaultClientPlatform
	}
	if c.CatalogTimeout <= 0 {
		c.CatalogTimeout = 15 * time.Second
	}
	if c.PlayerTimeout <= 0 {
		c.PlayerTimeout = 10 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.Default()
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker = breaker.DefaultConfig()
	}
	if c.Observer == nil {
		c.Observer = noopObserver{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Client talks to the upstream services.
type Client struct {
	cfg      Config
	http     *resty.Client
	breakers map[string]*breaker.Breaker
	log      zerolog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.setDefaults()
	c := &Client{
		cfg: cfg,
		http: resty.New().
			SetHeader("User-Agent", UserAgent).
			SetHeader("Accept", "application/json"),
		breakers: make(map[string]*breaker.Breaker),
		log:      cfg.Logger.With().Str("component", "upstream").Logger(),
	}
	for _, g := range []string{GroupCatalog, GroupAuth, GroupPD} {
		bc := cfg.Breaker
		bc.OnStateChange = func(name string, from, to breaker.State) {
			c.log.Warn().Str("group", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
			cfg.Observer.BreakerChanged(name, from, to)
		}
		c.breakers[g] = breaker.New(g, bc)
	}
	return c
}

// Breaker returns the circuit breaker for group, or nil.
func (c *Client) Breaker(group string) *breaker.Breaker {
	return c.breakers[group]
}

// request describes one logical upstream call.
type request struct {
	op       string
	group    string
	method   string
	url      string
	query    map[string]string
	headers  map[string]string
	bearer   string
	body     any
	timeout  time.Duration
	envelope bool // response is {"data": ...}
	out      any
}

// do runs r with retries and the group's breaker and decodes into r.out.
func (c *Client) do(ctx context.Context, r request) error {
	cfg := c.cfg.Retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.cfg.Observer.Retry(r.op)
		c.log.Debug().Err(err).Str("op", r.op).Int("attempt", attempt).Dur("delay", delay).Msg("retrying upstream call")
	}
	_, err := retry.Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return breaker.Do(ctx, c.breakers[r.group], func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.attempt(ctx, r)
		})
	})
	if err != nil {
		status := 0
		var ue *errs.UpstreamError
		if errors.As(err, &ue) {
			status = ue.Status
		}
		c.log.Error().Err(err).Str("op", r.op).Int("status", status).Msg("upstream call failed")
	}
	return err
}

func (c *Client) attempt(ctx context.Context, r request) (err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	header := http.Header{}
	ctx, span := tracing.StartClient(ctx, c.cfg.Tracing, r.op, r.method, r.url, header)
	status := 0
	defer func() {
		tracing.EndClient(span, status, err)
		c.cfg.Observer.ObserveUpstream(r.op, err, time.Since(start))
	}()

	req := c.http.R().SetContext(ctx).SetQueryParams(r.query).SetHeaders(r.headers)
	for k := range header {
		req.SetHeader(k, header.Get(k))
	}
	if r.bearer != "" {
		req.SetAuthToken(r.bearer)
	}
	if r.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(r.body)
	}

	resp, err := req.Execute(r.method, r.url)
	if err != nil {
		return errs.Upstream(r.op, 0, errs.ErrUpstreamUnavailable, err)
	}
	status = resp.StatusCode()
	if !resp.IsSuccess() {
		return errs.Upstream(r.op, status, errs.FromStatus(status), nil)
	}
	return decode(r, status, resp.Body())
}

func decode(r request, status int, body []byte) error {
	if r.out == nil {
		return nil
	}
	if r.envelope {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return errs.Upstream(r.op, status, errs.ErrMalformedResponse, err)
		}
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return errs.Upstream(r.op, status, errs.ErrMalformedResponse, errors.New(`missing "data" field`))
		}
		body = env.Data
	}
	if err := json.Unmarshal(body, r.out); err != nil {
		return errs.Upstream(r.op, status, errs.ErrMalformedResponse, err)
	}
	return nil
}
