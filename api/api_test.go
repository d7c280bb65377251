package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daffatgi02/valo-apps-backend/api"
	"github.com/daffatgi02/valo-apps-backend/auth"
	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/derived"
	"github.com/daffatgi02/valo-apps-backend/errs"
	"github.com/daffatgi02/valo-apps-backend/middleware"
	"github.com/daffatgi02/valo-apps-backend/player"
	"github.com/daffatgi02/valo-apps-backend/policy"
	"github.com/daffatgi02/valo-apps-backend/session"
	"github.com/daffatgi02/valo-apps-backend/storefront"
)

const (
	sova = "6f1a2b3c-0000-4000-8000-000000000001"
	jett = "6f1a2b3c-0000-4000-8000-000000000002"
)

type fakeUpstream struct {
	mu           sync.Mutex
	profile      player.Profile
	balance      player.Balance
	xp           player.AccountXP
	entErr       error
	balErr       error
	balanceCalls int
	userCalls    int
}

func (f *fakeUpstream) UserInfo(context.Context, string) (player.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	return f.profile, nil
}

func (f *fakeUpstream) Entitlements(context.Context, string) (string, error) {
	return "ent-1", f.entErr
}

func (f *fakeUpstream) Balance(context.Context, player.Credentials) (player.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	return f.balance, f.balErr
}

func (f *fakeUpstream) AccountXP(context.Context, player.Credentials) (player.AccountXP, error) {
	return f.xp, nil
}

type fakeCatalog struct {
	skins     []catalog.Skin
	skinsErr  error
	freshness catalog.Freshness
	health    catalog.Health
}

func (c *fakeCatalog) Skins(context.Context) ([]catalog.Skin, catalog.Freshness, error) {
	return c.skins, c.freshness, c.skinsErr
}

func (c *fakeCatalog) Bundles(context.Context) ([]catalog.Bundle, catalog.Freshness, error) {
	return []catalog.Bundle{{DisplayName: "Prime"}}, c.freshness, nil
}

func (c *fakeCatalog) Version(context.Context) (catalog.Version, catalog.Freshness) {
	return catalog.Version{Version: catalog.FallbackVersion}, catalog.Fallback
}

func (c *fakeCatalog) Health() catalog.Health { return c.health }

type fakeStore struct {
	listing storefront.Listing
	err     error
	creds   player.Credentials
}

func (s *fakeStore) Daily(_ context.Context, creds player.Credentials) (storefront.Listing, error) {
	s.creds = creds
	return s.listing, s.err
}

type env struct {
	t        *testing.T
	h        http.Handler
	sessions *session.Store
	balances *derived.Cache[player.Balance]
	up       *fakeUpstream
	cat      *fakeCatalog
	store    *fakeStore
	iss      *auth.Issuer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	balances := derived.New[player.Balance]("balance", time.Minute, player.BalanceOwner)
	profiles := derived.New[player.Profile]("profile", time.Hour, player.ProfileOwner)
	t.Cleanup(balances.Close)
	t.Cleanup(profiles.Close)

	e := &env{
		t:        t,
		sessions: session.New(session.WithInvalidators(balances, profiles)),
		balances: balances,
		up: &fakeUpstream{
			profile: player.NewProfile(sova, "Sova", "NA1", "na"),
			balance: player.Balance{ValorantPoints: 1000, RadianitePoints: 20},
			xp:      player.AccountXP{Level: 42, XP: 1500},
		},
		cat:   &fakeCatalog{skins: []catalog.Skin{{UUID: "s1", DisplayName: "Prime Vandal"}}, freshness: catalog.Fresh},
		store: &fakeStore{},
		iss:   auth.NewIssuer([]byte("test-secret"), time.Hour),
	}

	router := api.NewRouter(api.Deps{
		Sessions: e.sessions,
		Balances: balances,
		Profiles: profiles,
		Catalog:  e.cat,
		Store:    e.store,
		Upstream: e.up,
		Issuer:   e.iss,
		OAuth:    auth.DefaultOAuth(),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("valo_up 1\n"))
		}),
		Logger: zerolog.Nop(),
	})
	limit := policy.RateLimitRule{Rate: 1000, Window: time.Minute}
	res := policy.Default(limit, limit, 0)
	e.h = middleware.Auth(res, auth.SessionAuth(e.iss, e.sessions), zerolog.Nop())(router)
	return e
}

// login stores a session for id and returns an API token for it.
func (e *env) login(id, username string) string {
	e.t.Helper()
	e.sessions.Put(id, session.Record{
		AccessToken:       "access-" + id,
		EntitlementsToken: "ent-" + id,
		Username:          username,
		GameName:          strings.Split(username, "#")[0],
		TagLine:           "NA1",
		Region:            "na",
		Balance:           &player.Balance{ValorantPoints: 5},
	})
	tok, err := e.iss.Issue(auth.Claims{PlayerID: id, Username: username, Region: "na"})
	require.NoError(e.t, err)
	return tok
}

type response struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Error     string         `json:"error"`
	Data      map[string]any `json:"data"`
	Count     int            `json:"count"`
	Freshness string         `json:"freshness"`
}

func (e *env) do(method, path, token string, body any) (int, response) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)

	var out response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		raw := map[string]any{}
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &raw))
		if d, ok := raw["data"].(map[string]any); ok {
			out.Data = d
		}
		delete(raw, "data")
		b, _ := json.Marshal(raw)
		require.NoError(e.t, json.Unmarshal(b, &out))
	}
	return rec.Code, out
}

const callbackURL = "https://playvalorant.com/opt_in#access_token=AT-123456789&id_token=IT&token_type=Bearer&expires_in=3600"

func TestGenerateURL(t *testing.T) {
	e := newEnv(t)
	code, resp := e.do(http.MethodGet, "/api/auth/generate-url", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Data["authUrl"], "client_id=play-valorant-web-prod")
	assert.Len(t, resp.Data["instructions"], 5)
}

func TestCallback_CreatesSessionAndToken(t *testing.T) {
	e := newEnv(t)
	code, resp := e.do(http.MethodPost, "/api/auth/callback", "", map[string]string{"callbackUrl": callbackURL})
	require.Equal(t, http.StatusOK, code, resp.Message)

	claims, err := e.iss.Verify(resp.Data["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, sova, claims.PlayerID)
	assert.Equal(t, "Sova#NA1", claims.Username)

	user := resp.Data["user"].(map[string]any)
	assert.Equal(t, sova, user["id"])
	assert.Equal(t, "na", user["region"])
	assert.EqualValues(t, 1000, resp.Data["balance"].(map[string]any)["valorantPoints"])
	assert.EqualValues(t, 42, resp.Data["accountXP"].(map[string]any)["level"])
	assert.EqualValues(t, 3600, resp.Data["session"].(map[string]any)["expiresIn"])

	rec, err := e.sessions.Get(t.Context(), sova)
	require.NoError(t, err)
	assert.Equal(t, "AT-123456789", rec.AccessToken)
	assert.Equal(t, "ent-1", rec.EntitlementsToken)
	assert.Equal(t, "IT", rec.IDToken)

	_, cached := e.balances.Get(player.BalanceKey(sova))
	assert.True(t, cached, "balance goes through the balance cache")
}

func TestCallback_ReusesCachedProfile(t *testing.T) {
	e := newEnv(t)
	for range 2 {
		code, _ := e.do(http.MethodPost, "/api/auth/callback", "", map[string]string{"callbackUrl": callbackURL})
		require.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, 1, e.up.userCalls)
	assert.Equal(t, 1, e.up.balanceCalls)
}

func TestCallback_Rejects(t *testing.T) {
	e := newEnv(t)
	for name, body := range map[string]any{
		"missing url":  map[string]string{},
		"no tokens":    map[string]string{"callbackUrl": "https://playvalorant.com/opt_in"},
		"no id token":  map[string]string{"callbackUrl": "https://playvalorant.com/opt_in#access_token=AT"},
		"invalid json": "not an object",
	} {
		t.Run(name, func(t *testing.T) {
			code, resp := e.do(http.MethodPost, "/api/auth/callback", "", body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, resp.Success)
			assert.Equal(t, "INVALID_ARGUMENT", resp.Error)
		})
	}
}

func TestCallback_EntitlementsOutageIs502(t *testing.T) {
	e := newEnv(t)
	e.up.entErr = errs.Upstream("entitlements", http.StatusServiceUnavailable, errs.ErrUpstreamUnavailable, nil)
	code, resp := e.do(http.MethodPost, "/api/auth/callback", "", map[string]string{"callbackUrl": callbackURL})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", resp.Error)
	assert.Equal(t, 0, e.sessions.Len())
}

func TestCallback_BalanceFailureIsOptional(t *testing.T) {
	e := newEnv(t)
	e.up.balErr = errs.Upstream("balance", http.StatusServiceUnavailable, errs.ErrUpstreamUnavailable, nil)
	code, resp := e.do(http.MethodPost, "/api/auth/callback", "", map[string]string{"callbackUrl": callbackURL})
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, resp.Data["balance"])

	rec, err := e.sessions.Get(t.Context(), sova)
	require.NoError(t, err)
	assert.Nil(t, rec.Balance)
}

func TestProfile(t *testing.T) {
	e := newEnv(t)

	code, resp := e.do(http.MethodGet, "/api/auth/profile", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", resp.Error)

	tok := e.login(sova, "Sova#NA1")
	code, resp = e.do(http.MethodGet, "/api/auth/profile", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, sova, resp.Data["id"])
	assert.Equal(t, "Sova#NA1", resp.Data["username"])
	assert.Contains(t, resp.Data["session"], "lastActivity")
}

func TestProfile_ExpiredSessionIs401(t *testing.T) {
	e := newEnv(t)
	tok := e.login(sova, "Sova#NA1")
	require.NoError(t, e.sessions.Remove(t.Context(), sova))

	code, resp := e.do(http.MethodGet, "/api/auth/profile", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, resp.Message, "session expired")
}

func TestRefresh_RefetchesBalance(t *testing.T) {
	e := newEnv(t)
	tok := e.login(sova, "Sova#NA1")
	e.balances.Set(player.BalanceKey(sova), player.Balance{ValorantPoints: 1})

	code, resp := e.do(http.MethodPost, "/api/auth/refresh", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1000, resp.Data["balance"].(map[string]any)["valorantPoints"])
	assert.Equal(t, 1, e.up.balanceCalls)

	rec, err := e.sessions.Get(t.Context(), sova)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, rec.Balance.ValorantPoints)
	assert.Equal(t, 42, rec.AccountXP.Level)
}

func TestRefresh_KeepsPreviousBalanceOnFailure(t *testing.T) {
	e := newEnv(t)
	tok := e.login(sova, "Sova#NA1")
	e.up.balErr = errs.Upstream("balance", 0, errs.ErrUpstreamUnavailable, nil)

	code, resp := e.do(http.MethodPost, "/api/auth/refresh", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, resp.Data["balance"])

	rec, err := e.sessions.Get(t.Context(), sova)
	require.NoError(t, err)
	require.NotNil(t, rec.Balance)
	assert.EqualValues(t, 5, rec.Balance.ValorantPoints)
}

func TestSessions_ListsAccounts(t *testing.T) {
	e := newEnv(t)
	tok := e.login(sova, "Sova#NA1")
	e.login(jett, "Jett#KR1")

	code, resp := e.do(http.MethodGet, "/api/auth/sessions", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, resp.Data["count"])
	sessions := resp.Data["sessions"].(map[string]any)
	assert.Contains(t, sessions, jett)
	assert.NotContains(t, sessions[jett], "accessToken")
}

func TestSwitch(t *testing.T) {
	e := newEnv(t)
	tok := e.login(sova, "Sova#NA1")

	cases := []struct {
		name   string
		target string
		status int
	}{
		{"missing", "", http.StatusBadRequest},
		{"malformed", "not-a-uuid", http.StatusBadRequest},
		{"self", sova, http.StatusBadRequest},
		{"no session", jett, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := e.do(http.MethodPost, "/api/auth/switch", tok, map[string]string{"targetUserId": tc.target})
			assert.Equal(t, tc.status, code)
		})
	}

	e.login(jett, "Jett#KR1")
	code, resp := e.do(http.MethodPost, "/api/auth/switch", tok, map[string]string{"targetUserId": jett})
	require.Equal(t, http.StatusOK, code)
	claims, err := e.iss.Verify(resp.Data["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, jett, claims.PlayerID)
	assert.Equal(t, "Jett#KR1", resp.Data["user"].(map[string]any)["username"])
}

func TestLogout_CascadesToDerivedCaches(t *testing.T) {
	e := newEnv(t)
	tok := e.login(sova, "Sova#NA1")
	e.balances.Set(player.BalanceKey(sova), player.Balance{ValorantPoints: 1})

	code, _ := e.do(http.MethodPost, "/api/auth/logout", tok, nil)
	require.Equal(t, http.StatusOK, code)

	_, cached := e.balances.Get(player.BalanceKey(sova))
	assert.False(t, cached)
	code, _ = e.do(http.MethodGet, "/api/auth/profile", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestLogoutAccount(t *testing.T) {
	e := newEnv(t)
	tok := e.login(sova, "Sova#NA1")

	code, _ := e.do(http.MethodPost, "/api/auth/logout/"+jett, tok, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(http.MethodPost, "/api/auth/logout/bogus", tok, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	e.login(jett, "Jett#KR1")
	code, _ = e.do(http.MethodPost, "/api/auth/logout/"+jett, tok, nil)
	require.Equal(t, http.StatusOK, code)
	_, err := e.sessions.Get(t.Context(), jett)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = e.sessions.Get(t.Context(), sova)
	assert.NoError(t, err, "the caller stays signed in")
}

func TestDailyStore(t *testing.T) {
	e := newEnv(t)
	tok := e.login(sova, "Sova#NA1")
	exp := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	e.store.listing = storefront.Listing{
		Items:    []storefront.Item{{ID: "L1", DisplayName: "Prime Vandal"}},
		Expires:  exp,
		Enriched: true,
	}

	code, resp := e.do(http.MethodGet, "/api/store/daily", tok, nil)
	require.Equal(t, http.StatusOK, code)
	items := resp.Data["store"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Prime Vandal", items[0].(map[string]any)["displayName"])
	assert.Equal(t, true, resp.Data["enriched"])
	assert.Equal(t, "access-"+sova, e.store.creds.AccessToken)
	assert.Equal(t, "na", e.store.creds.Region)
}

func TestDailyStore_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errs.Upstream("storefront", http.StatusBadGateway, errs.ErrUpstreamUnavailable, nil), http.StatusBadGateway},
		{errs.Upstream("storefront", http.StatusTooManyRequests, errs.ErrRateLimited, nil), http.StatusTooManyRequests},
		{errs.Upstream("storefront", http.StatusUnauthorized, errs.ErrUnauthorized, nil), http.StatusUnauthorized},
		{errs.ErrCircuitOpen, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(errs.Code(tc.err), func(t *testing.T) {
			e := newEnv(t)
			tok := e.login(sova, "Sova#NA1")
			e.store.err = tc.err
			code, _ := e.do(http.MethodGet, "/api/store/daily", tok, nil)
			assert.Equal(t, tc.status, code)
		})
	}
}

func TestDailyStore_RequiresAuth(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(http.MethodGet, "/api/store/daily", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestGameData_Skins(t *testing.T) {
	e := newEnv(t)
	e.cat.freshness = catalog.Stale

	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/game-data/skins", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data      []catalog.Skin `json:"data"`
		Count     int            `json:"count"`
		Cached    bool           `json:"cached"`
		Freshness string         `json:"freshness"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Prime Vandal", body.Data[0].DisplayName)
	assert.True(t, body.Cached)
	assert.Equal(t, "stale", body.Freshness)
}

func TestGameData_SkinsUnavailableIs503(t *testing.T) {
	e := newEnv(t)
	e.cat.skinsErr = errs.Upstream("skins", 0, errs.ErrUpstreamUnavailable, nil)
	code, resp := e.do(http.MethodGet, "/api/game-data/skins", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Unable to fetch skins data at the moment", resp.Message)
}

func TestGameData_VersionFallback(t *testing.T) {
	e := newEnv(t)
	code, resp := e.do(http.MethodGet, "/api/game-data/version", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, catalog.FallbackVersion, resp.Data["version"])
	assert.Equal(t, "fallback", resp.Freshness)
}

func TestGameData_Health(t *testing.T) {
	e := newEnv(t)
	e.cat.health = catalog.Health{State: catalog.Loading}
	code, resp := e.do(http.MethodGet, "/api/game-data/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Game data service is initializing", resp.Message)
	assert.Equal(t, "loading", resp.Data["state"])

	e.cat.health = catalog.Health{Initialized: true, State: catalog.Ready}
	_, resp = e.do(http.MethodGet, "/api/game-data/health", "", nil)
	assert.Equal(t, "Game data service is healthy", resp.Message)
}

func TestProcessHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)

	rec = httptest.NewRecorder()
	e.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "valo_up 1")
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)
	code, resp := e.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Route not found", resp.Message)

	code, _ = e.do(http.MethodDelete, "/api/game-data/skins", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}
