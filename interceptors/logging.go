package interceptors

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/daffatgi02/valo-apps-backend/contextx"
)

// LoggingUnary logs one line per unary RPC.
func LoggingUnary(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC(log, ctx, info.FullMethod, err, time.Since(start))
		return resp, err
	}
}

// LoggingStream logs one line per stream once it ends.
func LoggingStream(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		logRPC(log, ss.Context(), info.FullMethod, err, time.Since(start))
		return err
	}
}

func logRPC(log zerolog.Logger, ctx context.Context, method string, err error, d time.Duration) {
	code := status.Code(err)
	ev := log.Info()
	if code != codes.OK && code != codes.Canceled {
		ev = log.Warn().Err(err)
	}
	ev.Str("method", method).
		Str("code", code.String()).
		Dur("dur", d).
		Str("request_id", contextx.RequestIDFromContext(ctx)).
		Msg("rpc")
}
