package interceptors

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/daffatgi02/valo-apps-backend/contextx"
)

// requestIDKey is the metadata key carrying the request ID.
var requestIDKey = strings.ToLower(contextx.RequestIDHeader)

// maxRequestIDLen bounds a client-supplied request ID.
const maxRequestIDLen = 128

// ensureRequestID returns ctx carrying the caller's request ID, or a new one,
// and echoes it in the response header.
func ensureRequestID(ctx context.Context) context.Context {
	if contextx.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDKey); len(v) > 0 && len(v[0]) <= maxRequestIDLen {
			id = v[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, id))
	return contextx.WithRequestID(ctx, id)
}

// RequestIDUnary returns a unary server interceptor that ensures a request ID
// is present in the context.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		return handler(ensureRequestID(ctx), req)
	}
}

// RequestIDStream returns a stream server interceptor that ensures a request
// ID is present in the stream's context.
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, &contextStream{ServerStream: ss, ctx: ensureRequestID(ss.Context())})
	}
}

// contextStream overrides the context of a server stream.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }
