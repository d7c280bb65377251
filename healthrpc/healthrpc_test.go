package healthrpc_test

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/healthrpc"
)

const bufSize = 1024 * 1024

type fakeSource struct {
	mu       sync.Mutex
	state    catalog.State
	watchers []func(catalog.State)
}

func (f *fakeSource) Health() catalog.Health {
	s := f.State()
	return catalog.Health{
		Initialized: s == catalog.Ready,
		State:       s,
		Datasets:    catalog.Presence{Skins: s == catalog.Ready, Bundles: s == catalog.Ready, Version: true},
	}
}

func (f *fakeSource) State() catalog.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) OnStateChange(fn func(catalog.State)) {
	f.mu.Lock()
	f.watchers = append(f.watchers, fn)
	f.mu.Unlock()
}

func (f *fakeSource) set(s catalog.State) {
	f.mu.Lock()
	f.state = s
	watchers := append([]func(catalog.State){}, f.watchers...)
	f.mu.Unlock()
	for _, fn := range watchers {
		fn(s)
	}
}

func startServer(t *testing.T, src healthrpc.Source) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer()
	hs := healthrpc.Register(s, src)
	t.Cleanup(func() {
		hs.Shutdown()
		s.Stop()
	})
	go func() { _ = s.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRegisterServices(t *testing.T) {
	s := grpc.NewServer()
	healthrpc.Register(s, &fakeSource{})
	info := s.GetServiceInfo()
	if _, ok := info["valo.Catalog"]; !ok {
		t.Fatal("valo.Catalog service not registered")
	}
	if _, ok := info["grpc.health.v1.Health"]; !ok {
		t.Fatal("grpc.health.v1.Health service not registered")
	}
}

func TestCatalogHealthViaBufconn(t *testing.T) {
	src := &fakeSource{state: catalog.Ready}
	conn := startServer(t, src)

	resp := new(healthrpc.HealthResponse)
	if err := conn.Invoke(t.Context(), "/valo.Catalog/Health", &healthrpc.HealthRequest{}, resp); err != nil {
		t.Fatalf("Health RPC failed: %v", err)
	}
	if !resp.Initialized || resp.State != "ready" {
		t.Fatalf("got %+v, want initialized ready", resp)
	}
	if !resp.Datasets.Skins || !resp.Datasets.Bundles || !resp.Datasets.Version {
		t.Fatalf("got datasets %+v", resp.Datasets)
	}
	if resp.ServerTimeUnix == 0 {
		t.Fatal("ServerTimeUnix should be non-zero")
	}
}

func TestHealthStatusFollowsCatalogState(t *testing.T) {
	src := &fakeSource{state: catalog.Loading}
	conn := startServer(t, src)
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: healthrpc.ServiceName})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("got %v, want NOT_SERVING while loading", got)
	}
	src.set(catalog.Ready)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("got %v, want SERVING once ready", got)
	}
	src.set(catalog.Degraded)
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("got %v, want NOT_SERVING when degraded", got)
	}

	overall, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if overall.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("process status %v, want SERVING", overall.GetStatus())
	}
}

func TestServingStatus(t *testing.T) {
	for s, want := range map[catalog.State]healthpb.HealthCheckResponse_ServingStatus{
		catalog.Uninitialized: healthpb.HealthCheckResponse_NOT_SERVING,
		catalog.Loading:       healthpb.HealthCheckResponse_NOT_SERVING,
		catalog.Ready:         healthpb.HealthCheckResponse_SERVING,
		catalog.Degraded:      healthpb.HealthCheckResponse_NOT_SERVING,
	} {
		if got := healthrpc.ServingStatus(s); got != want {
			t.Errorf("ServingStatus(%v) = %v, want %v", s, got, want)
		}
	}
}
