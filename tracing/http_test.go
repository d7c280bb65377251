package tracing

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_NamesSpanAfterRoute(t *testing.T) {
	cfg, rec := newTestConfig(t)

	r := mux.NewRouter()
	r.Use(RouteNamer)
	r.HandleFunc("/api/auth/logout/{userId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(cfg)(r)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout/abc", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if want := "POST /api/auth/logout/{userId}"; span.Name() != want {
		t.Fatalf("got %q, want %q", span.Name(), want)
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Fatalf("expected SpanKindServer, got %v", span.SpanKind())
	}
	if span.SpanContext().TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace context not extracted; traceID = %s", span.SpanContext().TraceID())
	}
	assertAttr(t, span.Attributes(), "http.route", "/api/auth/logout/{userId}")
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	cfg, rec := newTestConfig(t)
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/game-data/skins", nil))

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one errored span, got %d", len(spans))
	}
}

func TestMiddleware_NilConfigPassthrough(t *testing.T) {
	called := false
	h := Middleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("handler was not called")
	}
}

func TestStartClient_InjectsAndRecords(t *testing.T) {
	cfg, rec := newTestConfig(t)
	header := http.Header{}
	_, span := StartClient(t.Context(), cfg, "skins", http.MethodGet, "https://valorant-api.com/v1/weapons/skins", header)
	if header.Get("traceparent") == "" {
		t.Fatal("expected traceparent to be injected")
	}
	EndClient(span, http.StatusBadGateway, errors.New("bad gateway"))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "upstream skins" || spans[0].SpanKind() != trace.SpanKindClient {
		t.Fatalf("unexpected span %q kind %v", spans[0].Name(), spans[0].SpanKind())
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected Error status, got %v", spans[0].Status().Code)
	}
}

func TestNewProvider(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := NewProvider(ExporterStdout, &buf)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	_, span := tp.Tracer("test").Start(t.Context(), "op")
	span.End()
	if err := shutdown(t.Context()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"Name":"op"`)) {
		t.Fatalf("span not exported: %s", buf.String())
	}

	if _, _, err := NewProvider("jaeger", nil); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	if _, shutdown, err := NewProvider(ExporterNone, nil); err != nil || shutdown(t.Context()) != nil {
		t.Fatalf("none exporter: %v", err)
	}
}
