// Package api serves the BFF's HTTP routes: sign-in and multi-account
// session management, the daily store and the shared game catalog.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/daffatgi02/valo-apps-backend/api/respond"
	"github.com/daffatgi02/valo-apps-backend/auth"
	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/derived"
	"github.com/daffatgi02/valo-apps-backend/middleware"
	"github.com/daffatgi02/valo-apps-backend/player"
	"github.com/daffatgi02/valo-apps-backend/session"
	"github.com/daffatgi02/valo-apps-backend/storefront"
	"github.com/daffatgi02/valo-apps-backend/tracing"
)

// PlayerAPI is the upstream account and player data client.
// *upstream.Client implements it.
type PlayerAPI interface {
	UserInfo(ctx context.Context, accessToken string) (player.Profile, error)
	Entitlements(ctx context.Context, accessToken string) (string, error)
	Balance(ctx context.Context, creds player.Credentials) (player.Balance, error)
	AccountXP(ctx context.Context, creds player.Credentials) (player.AccountXP, error)
}

// Catalog is the shared game catalog. *catalog.Cache implements it.
type Catalog interface {
	Skins(ctx context.Context) ([]catalog.Skin, catalog.Freshness, error)
	Bundles(ctx context.Context) ([]catalog.Bundle, catalog.Freshness, error)
	Version(ctx context.Context) (catalog.Version, catalog.Freshness)
	Health() catalog.Health
}

// Store builds a player's daily store. *storefront.Service implements it.
type Store interface {
	Daily(ctx context.Context, creds player.Credentials) (storefront.Listing, error)
}

// Deps are the collaborators the routes are served from.
type Deps struct {
	Sessions *session.Store
	Balances *derived.Cache[player.Balance]
	Profiles *derived.Cache[player.Profile]
	Catalog  Catalog
	Store    Store
	Upstream PlayerAPI
	Issuer   *auth.Issuer
	OAuth    auth.OAuthConfig

	// Metrics, when set, is mounted at /metrics.
	Metrics  http.Handler
	Observer middleware.HTTPObserver
	Logger   zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRouter creates the HTTP router with every API route. Authentication,
// rate limiting and the other cross-cutting concerns are applied around it
// by the server's middleware chain.
func NewRouter(d Deps) *mux.Router {
	if d.Now == nil {
		d.Now = time.Now
	}
	started := d.Now()

	router := mux.NewRouter()
	router.Use(tracing.RouteNamer, mux.MiddlewareFunc(middleware.Metrics(d.Observer)))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.Fail(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond.Fail(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	authH := &AuthHandler{d: d, log: d.Logger.With().Str("handler", "auth").Logger()}
	storeH := &StoreHandler{sessions: d.Sessions, store: d.Store, log: d.Logger.With().Str("handler", "store").Logger()}
	gameH := &GameDataHandler{catalog: d.Catalog, log: d.Logger.With().Str("handler", "game-data").Logger()}

	// Auth endpoints
	router.HandleFunc("/api/auth/generate-url", authH.GenerateURL).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/callback", authH.Callback).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/profile", authH.Profile).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/refresh", authH.Refresh).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/sessions", authH.Sessions).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/switch", authH.Switch).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", authH.Logout).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout/{userId}", authH.LogoutAccount).Methods(http.MethodPost)

	// Store endpoints
	router.HandleFunc("/api/store/daily", storeH.Daily).Methods(http.MethodGet)

	// Game data endpoints
	router.HandleFunc("/api/game-data/skins", gameH.Skins).Methods(http.MethodGet)
	router.HandleFunc("/api/game-data/bundles", gameH.Bundles).Methods(http.MethodGet)
	router.HandleFunc("/api/game-data/version", gameH.Version).Methods(http.MethodGet)
	router.HandleFunc("/api/game-data/health", gameH.Health).Methods(http.MethodGet)

	// Process health and metrics
	router.HandleFunc("/api/health", healthHandler(started, d.Now)).Methods(http.MethodGet)
	if d.Metrics != nil {
		router.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}
	return router
}

func healthHandler(started time.Time, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		t := now()
		respond.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "OK",
			"timestamp": t.UTC(),
			"uptime":    t.Sub(started).Seconds(),
		})
	}
}
