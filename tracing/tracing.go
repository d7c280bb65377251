// Package tracing wires OpenTelemetry into the service: server spans for
// HTTP requests and admin RPCs, and client spans for upstream calls. Tracing
// is off unless a [Config] is supplied.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentation = "github.com/daffatgi02/valo-apps-backend/tracing"

// Config holds the OpenTelemetry configuration used by the middleware, the
// gRPC interceptors and the upstream client.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts and injects trace context from/into carriers.
	// When nil the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

func (c *Config) tracer() trace.Tracer {
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentation)
}

func (c *Config) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// Exporter names accepted by NewProvider.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// NewProvider builds a tracer provider for the named exporter. "stdout"
// writes spans as JSON to w; "none" (or empty) returns a no-op provider. The
// returned shutdown flushes pending spans.
func NewProvider(exporter string, w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	switch exporter {
	case "", ExporterNone:
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("tracing: stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		return tp, tp.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("tracing: unknown exporter %q", exporter)
	}
}
