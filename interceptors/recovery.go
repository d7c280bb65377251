// Package interceptors holds the gRPC server interceptors of the admin
// server: panic recovery, request IDs and an RPC access log. They mirror the
// HTTP middleware in package middleware.
package interceptors

import (
	"context"
	"runtime/debug"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RecoveryUnary returns a unary server interceptor that recovers from panics,
// logs them and returns an Internal gRPC error instead of crashing the
// process.
func RecoveryUnary(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(log, info.FullMethod, r)
				resp = nil
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStream is the stream counterpart of RecoveryUnary.
func RecoveryStream(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(log, info.FullMethod, r)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

func logPanic(log zerolog.Logger, method string, r any) {
	log.Error().
		Interface("panic", r).
		Str("method", method).
		Bytes("stack", debug.Stack()).
		Msg("rpc panicked")
}
