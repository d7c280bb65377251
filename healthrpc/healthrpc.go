// Package healthrpc exposes the catalog loader on the admin gRPC server.
//
// Two services are registered: the standard grpc.health.v1 Health service,
// whose "valo.catalog" status follows the catalog loader state, and a small
// valo.Catalog service returning the full catalog health report. The latter
// uses a hand-written [grpc.ServiceDesc] with plain Go messages, so the
// package installs a codec that JSON-encodes its own messages and delegates
// everything else to protobuf.
package healthrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/daffatgi02/valo-apps-backend/catalog"
)

// ServiceName is the grpc.health.v1 service name that tracks catalog state.
const ServiceName = "valo.catalog"

// HealthRequest is the input for valo.Catalog/Health.
type HealthRequest struct{}

// HealthResponse is the output of valo.Catalog/Health.
type HealthResponse struct {
	Initialized    bool             `json:"initialized"`
	State          string           `json:"state"`
	Datasets       catalog.Presence `json:"cacheStats"`
	ServerTimeUnix int64            `json:"server_time_unix"`
}

// Source is the catalog loader as seen by the admin RPCs.
// *catalog.Cache implements it.
type Source interface {
	Health() catalog.Health
	State() catalog.State
	OnStateChange(fn func(catalog.State))
}

// Handler is the interface that a valo.Catalog implementation must satisfy.
type Handler interface {
	Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error)
}

// NewHandler returns a Handler that reports src.
func NewHandler(src Source) Handler { return handler{src: src, now: time.Now} }

type handler struct {
	src Source
	now func() time.Time
}

func (h handler) Health(context.Context, *HealthRequest) (*HealthResponse, error) {
	r := h.src.Health()
	return &HealthResponse{
		Initialized:    r.Initialized,
		State:          r.State.String(),
		Datasets:       r.Datasets,
		ServerTimeUnix: h.now().Unix(),
	}, nil
}

// ServingStatus maps a loader state to a health status. Only Ready serves.
func ServingStatus(s catalog.State) healthpb.HealthCheckResponse_ServingStatus {
	if s == catalog.Ready {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// NewHealthServer returns a grpc.health.v1 server whose ServiceName status
// follows src. The overall ("") status is always SERVING.
func NewHealthServer(src Source) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, ServingStatus(src.State()))
	src.OnStateChange(func(s catalog.State) {
		hs.SetServingStatus(ServiceName, ServingStatus(s))
	})
	return hs
}

// ServiceDesc is the grpc.ServiceDesc for the valo.Catalog service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "valo.Catalog",
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Health",
			Handler:    healthHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "valo/catalog.proto",
}

func healthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(HealthRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Health(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/valo.Catalog/Health",
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).Health(ctx, r.(*HealthRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// Register installs both admin services for src on s and returns the health
// server so the caller can Shutdown it on exit.
func Register(s *grpc.Server, src Source) *health.Server {
	hs := NewHealthServer(src)
	healthpb.RegisterHealthServer(s, hs)
	s.RegisterService(&ServiceDesc, NewHandler(src))
	return hs
}
