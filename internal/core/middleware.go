package core

import (
	"cmp"
	"net/http"
	"slices"

	"google.golang.org/grpc"
)

// middleware is one layer of the server: an HTTP middleware, a gRPC
// interceptor pair, or both, with a deterministic execution order. Lower
// Order values run first.
type middleware struct {
	HTTP   func(http.Handler) http.Handler
	Unary  grpc.UnaryServerInterceptor
	Stream grpc.StreamServerInterceptor
	Order  int
}

// MiddlewareBuilder collects middleware entries and produces sorted chains.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers an HTTP middleware with the given order.
func (b *MiddlewareBuilder) Add(order int, mw func(http.Handler) http.Handler) {
	b.entries = append(b.entries, middleware{HTTP: mw, Order: order})
}

// AddRPC registers a gRPC interceptor pair with the given order.
// Either interceptor may be nil if only one direction is needed.
func (b *MiddlewareBuilder) AddRPC(order int, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	b.entries = append(b.entries, middleware{Unary: unary, Stream: stream, Order: order})
}

// Len returns the number of registered entries.
func (b *MiddlewareBuilder) Len() int { return len(b.entries) }

// Build sorts the collected middleware by Order (stable) and returns the
// HTTP chain and the separated unary and stream interceptor slices.
func (b *MiddlewareBuilder) Build() ([]func(http.Handler) http.Handler, []grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	entries := slices.Clone(b.entries)
	slices.SortStableFunc(entries, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})

	var mws []func(http.Handler) http.Handler
	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor

	for _, m := range entries {
		if m.HTTP != nil {
			mws = append(mws, m.HTTP)
		}
		if m.Unary != nil {
			unary = append(unary, m.Unary)
		}
		if m.Stream != nil {
			stream = append(stream, m.Stream)
		}
	}

	return mws, unary, stream
}
