package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	valoapps "github.com/daffatgi02/valo-apps-backend"
	"github.com/daffatgi02/valo-apps-backend/api"
	"github.com/daffatgi02/valo-apps-backend/auth"
	"github.com/daffatgi02/valo-apps-backend/cache"
	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/derived"
	"github.com/daffatgi02/valo-apps-backend/healthrpc"
	"github.com/daffatgi02/valo-apps-backend/internal/config"
	"github.com/daffatgi02/valo-apps-backend/internal/logger"
	"github.com/daffatgi02/valo-apps-backend/internal/metrics"
	"github.com/daffatgi02/valo-apps-backend/player"
	"github.com/daffatgi02/valo-apps-backend/policy"
	"github.com/daffatgi02/valo-apps-backend/security"
	"github.com/daffatgi02/valo-apps-backend/session"
	"github.com/daffatgi02/valo-apps-backend/storefront"
	"github.com/daffatgi02/valo-apps-backend/tracing"
	"github.com/daffatgi02/valo-apps-backend/upstream"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the admin gRPC server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func newUpstream(cfg *config.Config, log zerolog.Logger, tc *tracing.Config, m *metrics.Metrics) *upstream.Client {
	ucfg := upstream.Config{
		CatalogBaseURL:  cfg.CatalogBaseURL,
		AuthBaseURL:     cfg.AuthBaseURL,
		EntitlementsURL: cfg.EntitlementsURL,
		PDURLTemplate:   cfg.PDURLTemplate,
		Language:        cfg.Language,
		CatalogTimeout:  cfg.CatalogTimeout,
		PlayerTimeout:   cfg.PlayerTimeout,
		Tracing:         tc,
		Logger:          log,
	}
	if m != nil {
		ucfg.Observer = m
	}
	return upstream.New(ucfg)
}

func catalogOptions(cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) []catalog.Option {
	return []catalog.Option{
		catalog.WithTTL(cfg.CatalogTTL),
		catalog.WithVersionTTL(cfg.VersionTTL),
		catalog.WithTimeouts(cfg.CatalogTimeout, cfg.PlayerTimeout),
		catalog.WithStartDelay(cfg.CatalogStartDelay),
		catalog.WithRetryInterval(cfg.CatalogRetryInterval),
		catalog.WithStats(m),
		catalog.WithLogger(log),
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.NewWithWriter("valo-server", cfg.LogLevel, os.Stdout)
	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("http_port", cfg.HTTPPort).
		Int("grpc_port", cfg.GRPCPort).
		Msg("valo-server starting")

	m := metrics.New()

	tp, shutdownTracing, err := tracing.NewProvider(cfg.Tracing, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()
	var tc *tracing.Config
	if cfg.Tracing == tracing.ExporterStdout {
		tc = &tracing.Config{TracerProvider: tp, Propagators: propagation.TraceContext{}}
	}

	client := newUpstream(cfg, log, tc, m)

	cat := catalog.New(client, catalogOptions(cfg, log, m)...)
	cat.OnStateChange(m.CatalogState)
	cat.Start(ctx)
	defer cat.Stop()

	balances := derived.New[player.Balance]("balance", cfg.BalanceTTL, player.BalanceOwner,
		derived.WithStats(m), derived.WithSweepInterval(cfg.CacheSweepInterval), derived.WithLogger(log))
	defer balances.Close()
	profiles := derived.New[player.Profile]("profile", cfg.ProfileTTL, player.ProfileOwner,
		derived.WithStats(m), derived.WithSweepInterval(cfg.CacheSweepInterval), derived.WithLogger(log))
	defer profiles.Close()

	offers, err := cache.NewL1("store", cfg.StoreCacheItems, cache.WithL1Stats(m))
	if err != nil {
		return fmt.Errorf("store cache: %w", err)
	}
	defer offers.Close()
	store := storefront.NewService(client, cat, offers,
		storefront.WithMaxTTL(cfg.StoreTTL), storefront.WithLogger(log))

	sessions := session.New(
		session.WithTTL(cfg.SessionTTL),
		session.WithMaxLifetime(cfg.SessionMaxLifetime),
		session.WithInvalidators(balances, profiles, store),
		session.WithSweepInterval(cfg.SessionSweepInterval),
		session.WithLogger(log),
	)
	defer sessions.Close()
	issuer := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)

	opts, err := serverOptions(cfg, log, m, tc, auth.SessionAuth(issuer, sessions))
	if err != nil {
		return err
	}
	srv := valoapps.NewServer(opts...)
	health := healthrpc.Register(srv.GRPC(), cat)

	router := api.NewRouter(api.Deps{
		Sessions: sessions,
		Balances: balances,
		Profiles: profiles,
		Catalog:  cat,
		Store:    store,
		Upstream: client,
		Issuer:   issuer,
		OAuth:    auth.DefaultOAuth(),
		Metrics:  srv.MetricsHandler(),
		Observer: m,
		Logger:   log,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handle(router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("admin listener: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", lis.Addr().String()).Msg("admin gRPC server listening")
		return srv.GRPC().Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.GRPC().GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server exited")
	return nil
}

func serverOptions(cfg *config.Config, log zerolog.Logger, m *metrics.Metrics, tc *tracing.Config, authFn auth.AuthFunc) ([]valoapps.Option, error) {
	clients, err := security.NewClientResolver(cfg.TrustedProxies, nil)
	if err != nil {
		return nil, err
	}
	general := policy.RateLimitRule{Rate: cfg.RateLimitGeneral.Requests, Window: cfg.RateLimitGeneral.Window}
	signIn := policy.RateLimitRule{Rate: cfg.RateLimitAuth.Requests, Window: cfg.RateLimitAuth.Window}

	opts := append(valoapps.DefaultOptions(),
		valoapps.WithLogger(log),
		valoapps.WithMetrics(m),
		valoapps.WithClientResolver(clients),
		valoapps.WithPolicies(policy.Default(general, signIn, cfg.RequestTimeout)),
		valoapps.WithAccessLog(),
		valoapps.WithCORS(cfg.CORSOrigins...),
		valoapps.WithRateLimit(),
		valoapps.WithTimeout(cfg.RequestTimeout),
		valoapps.WithAuth(authFn),
	)
	if tc != nil {
		opts = append(opts, valoapps.WithTracing(tc))
	}
	if len(cfg.BlockedCIDRs) > 0 {
		blocker, err := security.NewIPBlocker(security.Config{
			Mode:           security.DenyList,
			CIDRs:          cfg.BlockedCIDRs,
			TrustedProxies: cfg.TrustedProxies,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, valoapps.WithIPBlocker(blocker))
	}
	return opts, nil
}
