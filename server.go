// Package valoapps assembles the Valorant BFF's outer surface: the HTTP API
// handler wrapped in its middleware layers and the admin gRPC server that
// exposes catalog health.
//
// Layers are added with functional [Option] values. Their execution order is
// fixed by priority (see the Priority constants), not by the order options
// are passed:
//
//	srv := valoapps.NewServer(
//		valoapps.WithRecovery(),
//		valoapps.WithPolicies(policy.Default(general, signIn, 0)),
//		valoapps.WithRateLimit(),
//		valoapps.WithAuth(auth.SessionAuth(issuer, sessions)),
//	)
//	http.ListenAndServe(":3000", srv.Handle(router))
package valoapps

import (
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/daffatgi02/valo-apps-backend/internal/core"
	"github.com/daffatgi02/valo-apps-backend/internal/metrics"
)

// Server holds the assembled HTTP middleware chain and the admin gRPC
// server.
type Server struct {
	middlewares []func(http.Handler) http.Handler
	grpcServer  *grpc.Server
	metrics     *metrics.Metrics
}

// NewServer applies opts and builds both chains. Layer constructors run
// after every option has been applied.
func NewServer(opts ...Option) *Server {
	cfg := config{log: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}

	mws, unary, stream := cfg.build().Build()
	serverOpts := core.BuildServerOptions(unary, stream, cfg.grpcOpts...)

	return &Server{
		middlewares: mws,
		grpcServer:  grpc.NewServer(serverOpts...),
		metrics:     cfg.metrics,
	}
}

// Handle wraps h in the HTTP middleware chain.
func (s *Server) Handle(h http.Handler) http.Handler {
	return core.BuildHandler(h, s.middlewares)
}

// Layers returns the number of HTTP middleware layers.
func (s *Server) Layers() int { return len(s.middlewares) }

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// MetricsHandler serves the metrics registry set with WithMetrics, or the
// default Prometheus registry when none was set.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}
