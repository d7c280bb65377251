package valoapps

import (
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/daffatgi02/valo-apps-backend/auth"
	"github.com/daffatgi02/valo-apps-backend/interceptors"
	"github.com/daffatgi02/valo-apps-backend/internal/metrics"
	"github.com/daffatgi02/valo-apps-backend/middleware"
	"github.com/daffatgi02/valo-apps-backend/policy"
	"github.com/daffatgi02/valo-apps-backend/security"
	"github.com/daffatgi02/valo-apps-backend/tracing"
)

// Option configures a Server.
type Option func(*config)

// WithLogger sets the logger used by recovery, access logging and auth.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithPolicies sets the route-group policies consulted by rate limiting,
// timeouts and auth, and stores the matched group in each request context.
func WithPolicies(res *policy.Resolver) Option {
	return func(c *config) {
		c.resolver = res
		c.add(layer{order: PriorityGroup, http: func(c *config) middleware.Middleware {
			return middleware.Group(c.resolver)
		}})
	}
}

// WithClientResolver sets how client IPs are derived behind proxies. It is
// used for rate-limit keys and access logs.
func WithClientResolver(r *security.ClientResolver) Option {
	return func(c *config) { c.clients = r }
}

// WithMetrics exposes m through MetricsHandler and reports rate-limit
// rejections to it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithGRPCOptions appends raw options for the admin gRPC server.
func WithGRPCOptions(opts ...grpc.ServerOption) Option {
	return func(c *config) { c.grpcOpts = append(c.grpcOpts, opts...) }
}

// WithRecovery turns handler panics into 500 responses and gRPC Internal
// errors instead of crashing the process.
func WithRecovery() Option {
	return func(c *config) {
		c.add(layer{
			order:  PriorityRecovery,
			http:   func(c *config) middleware.Middleware { return middleware.Recovery(c.log) },
			unary:  func(c *config) grpc.UnaryServerInterceptor { return interceptors.RecoveryUnary(c.log) },
			stream: func(c *config) grpc.StreamServerInterceptor { return interceptors.RecoveryStream(c.log) },
		})
	}
}

// WithRequestID gives every request and RPC an ID.
func WithRequestID() Option {
	return func(c *config) {
		c.add(layer{
			order:  PriorityRequestID,
			http:   func(*config) middleware.Middleware { return middleware.RequestID() },
			unary:  func(*config) grpc.UnaryServerInterceptor { return interceptors.RequestIDUnary() },
			stream: func(*config) grpc.StreamServerInterceptor { return interceptors.RequestIDStream() },
		})
	}
}

// WithTracing opens a server span for every request and RPC. A nil cfg uses
// the global tracer provider.
func WithTracing(cfg *tracing.Config) Option {
	if cfg == nil {
		cfg = &tracing.Config{}
	}
	return func(c *config) {
		c.add(layer{
			order:  PriorityTracing,
			http:   func(*config) middleware.Middleware { return tracing.Middleware(cfg) },
			unary:  func(*config) grpc.UnaryServerInterceptor { return tracing.UnaryServerInterceptor(cfg) },
			stream: func(*config) grpc.StreamServerInterceptor { return tracing.StreamServerInterceptor(cfg) },
		})
	}
}

// WithAccessLog logs one line per request and RPC.
func WithAccessLog() Option {
	return func(c *config) {
		c.add(layer{
			order:  PriorityLogging,
			http:   func(c *config) middleware.Middleware { return middleware.AccessLog(c.log, c.clients) },
			unary:  func(c *config) grpc.UnaryServerInterceptor { return interceptors.LoggingUnary(c.log) },
			stream: func(c *config) grpc.StreamServerInterceptor { return interceptors.LoggingStream(c.log) },
		})
	}
}

// WithCORS allows browser calls from origins.
func WithCORS(origins ...string) Option {
	return func(c *config) {
		c.add(layer{order: PriorityCORS, http: func(*config) middleware.Middleware {
			return middleware.CORS(origins)
		}})
	}
}

// WithIPBlocker rejects requests from addresses b does not allow with 403.
// Without WithClientResolver, b's resolver also identifies clients for rate
// limiting and access logs.
func WithIPBlocker(b *security.IPBlocker) Option {
	return func(c *config) {
		if c.clients == nil {
			c.clients = b.Clients()
		}
		c.add(layer{order: PriorityIPBlock, http: func(*config) middleware.Middleware {
			return middleware.IPBlock(b)
		}})
	}
}

// WithRateLimit limits each client per route group according to the
// policies set with WithPolicies.
func WithRateLimit() Option {
	return func(c *config) {
		c.add(layer{order: PriorityRateLimit, http: func(c *config) middleware.Middleware {
			var obs middleware.RateLimitObserver
			if c.metrics != nil {
				obs = c.metrics
			}
			return middleware.RateLimit(c.resolver, c.clients, obs)
		}})
	}
}

// WithTimeout bounds every request by its group's timeout, or def.
func WithTimeout(def time.Duration) Option {
	return func(c *config) {
		c.add(layer{order: PriorityTimeout, http: func(c *config) middleware.Middleware {
			return middleware.Timeout(c.resolver, def)
		}})
	}
}

// WithAuth runs fn for every route group with AuthRequired.
func WithAuth(fn auth.AuthFunc) Option {
	return func(c *config) {
		c.add(layer{order: PriorityAuth, http: func(c *config) middleware.Middleware {
			return middleware.Auth(c.resolver, fn, c.log)
		}})
	}
}

// WithMiddleware adds a custom HTTP middleware at the given priority.
func WithMiddleware(priority int, mw middleware.Middleware) Option {
	return func(c *config) {
		c.add(layer{order: priority, http: func(*config) middleware.Middleware { return mw }})
	}
}
