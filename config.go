package valoapps

import (
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/daffatgi02/valo-apps-backend/internal/core"
	"github.com/daffatgi02/valo-apps-backend/internal/metrics"
	"github.com/daffatgi02/valo-apps-backend/middleware"
	"github.com/daffatgi02/valo-apps-backend/policy"
	"github.com/daffatgi02/valo-apps-backend/security"
)

// Middleware priorities. Lower values run first, i.e. further out. The order
// options are passed in does not matter.
const (
	PriorityRecovery  = 100
	PriorityRequestID = 200
	PriorityGroup     = 250
	PriorityTracing   = 300
	PriorityLogging   = 400
	PriorityCORS      = 500
	PriorityIPBlock   = 600
	PriorityRateLimit = 700
	PriorityTimeout   = 800
	PriorityAuth      = 900
)

// layer is one middleware slot. Its constructors run once every option has
// been applied, so they see the final logger, policies and client resolver.
type layer struct {
	order  int
	http   func(c *config) middleware.Middleware
	unary  func(c *config) grpc.UnaryServerInterceptor
	stream func(c *config) grpc.StreamServerInterceptor
}

// config holds the internal configuration assembled via functional options.
type config struct {
	layers   []layer
	log      zerolog.Logger
	resolver *policy.Resolver
	clients  *security.ClientResolver
	metrics  *metrics.Metrics
	grpcOpts []grpc.ServerOption
}

func (c *config) add(l layer) { c.layers = append(c.layers, l) }

// build feeds every layer into a MiddlewareBuilder in registration order.
func (c *config) build() *core.MiddlewareBuilder {
	var b core.MiddlewareBuilder
	for _, l := range c.layers {
		if l.http != nil {
			if mw := l.http(c); mw != nil {
				b.Add(l.order, mw)
			}
		}
		var unary grpc.UnaryServerInterceptor
		var stream grpc.StreamServerInterceptor
		if l.unary != nil {
			unary = l.unary(c)
		}
		if l.stream != nil {
			stream = l.stream(c)
		}
		if unary != nil || stream != nil {
			b.AddRPC(l.order, unary, stream)
		}
	}
	return &b
}
