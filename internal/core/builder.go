// Package core assembles the server's middleware chains in priority order.
package core

import (
	"net/http"

	"google.golang.org/grpc"
)

// BuildServerOptions translates interceptor slices into grpc.ServerOption
// values for grpc.NewServer, followed by extra.
func BuildServerOptions(
	unary []grpc.UnaryServerInterceptor,
	stream []grpc.StreamServerInterceptor,
	extra ...grpc.ServerOption,
) []grpc.ServerOption {
	var opts []grpc.ServerOption

	if len(unary) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(unary...))
	}

	if len(stream) > 0 {
		opts = append(opts, grpc.ChainStreamInterceptor(stream...))
	}

	return append(opts, extra...)
}

// BuildHandler wraps h so that mws run in slice order: the first one sees
// the request first.
func BuildHandler(h http.Handler, mws []func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
