// Package metrics owns the service's Prometheus collectors. Everything is
// registered on a private registry so tests can build as many instances as
// they like.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daffatgi02/valo-apps-backend/breaker"
	"github.com/daffatgi02/valo-apps-backend/catalog"
	"github.com/daffatgi02/valo-apps-backend/errs"
)

const namespace = "valo"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	upstream     *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	catalogState *prometheus.GaugeVec
	httpRequests *prometheus.HistogramVec
	rateLimited  *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups that found a fresh entry.",
		}, []string{"cache"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that found nothing fresh.",
		}, []string{"cache"}),
		upstream: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Upstream call latency by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Upstream attempts that were retried.",
		}, []string{"op"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "breaker_open",
			Help:      "1 while the named circuit breaker refuses calls.",
		}, []string{"group"}),
		catalogState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "state",
			Help:      "1 for the catalog loader's current state, 0 for the others.",
		}, []string{"state"}),
		httpRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter.",
		}, []string{"group"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Hit counts a cache hit. Together with Miss it satisfies cache.Stats.
func (m *Metrics) Hit(name string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(name).Inc()
}

// Miss counts a cache miss.
func (m *Metrics) Miss(name string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(name).Inc()
}

// ObserveUpstream records one upstream call.
func (m *Metrics) ObserveUpstream(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(op, outcome(err)).Observe(d.Seconds())
}

// Retry counts a retried upstream attempt.
func (m *Metrics) Retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// BreakerChanged tracks circuit breaker transitions.
func (m *Metrics) BreakerChanged(group string, _, to breaker.State) {
	if m == nil {
		return
	}
	v := 0.0
	if to == breaker.Open {
		v = 1
	}
	m.breakerState.WithLabelValues(group).Set(v)
}

// CatalogState marks s as the current catalog loader state.
func (m *Metrics) CatalogState(s catalog.State) {
	if m == nil {
		return
	}
	for _, st := range []catalog.State{catalog.Uninitialized, catalog.Loading, catalog.Ready, catalog.Degraded} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.catalogState.WithLabelValues(st.String()).Set(v)
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// RateLimited counts a refused request.
func (m *Metrics) RateLimited(group string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(group).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrCircuitOpen):
		return "circuit_open"
	default:
		if code := errs.Code(err); code != "INTERNAL" {
			return code
		}
		return "error"
	}
}
