package tracing

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Middleware returns HTTP middleware that opens a server span per request.
// It runs before routing, so the span starts out named after the raw path;
// install RouteNamer on the router to rename it to the route template. If
// cfg is nil the middleware is a passthrough.
func Middleware(cfg *Config) func(http.Handler) http.Handler {
	if cfg == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := cfg.propagators().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			route := routeOf(r)
			ctx, span := cfg.tracer().Start(ctx, r.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", r.URL.Path),
			)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", sw.status))
			if sw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.status))
			}
		})
	}
}

// StartClient opens a client span for an upstream call and injects the trace
// context into header. Finish it with EndClient. A nil cfg yields a no-op span.
func StartClient(ctx context.Context, cfg *Config, op, method, url string, header http.Header) (context.Context, trace.Span) {
	if cfg == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	ctx, span := cfg.tracer().Start(ctx, "upstream "+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", url),
		attribute.String("upstream.op", op),
	)
	cfg.propagators().Inject(ctx, propagation.HeaderCarrier(header))
	return ctx, span
}

// EndClient records the outcome of an upstream call and ends the span.
func EndClient(span trace.Span, status int, err error) {
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RouteNamer is mux middleware that renames the current server span after
// the matched route template.
func RouteNamer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := routeOf(r); route != r.URL.Path {
			span := trace.SpanFromContext(r.Context())
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		next.ServeHTTP(w, r)
	})
}

// routeOf returns the mux path template, falling back to the raw path.
func routeOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
