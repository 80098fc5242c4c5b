// Package metrics exports Prometheus metrics fed from lifecycle events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/gqlstream/internal/eventbus"
	events "github.com/hanpama/gqlstream/internal/events"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	graphqlOperations   *prometheus.CounterVec
	subscriptionsActive *prometheus.GaugeVec
	subscriptionFrames  *prometheus.CounterVec
	subscriptionsDone   *prometheus.CounterVec
}

// New registers the collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gqlstream_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gqlstream_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds, including streamed responses",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		graphqlOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gqlstream_graphql_operations_total",
				Help: "Total number of GraphQL operations",
			},
			[]string{"type", "status"},
		),
		subscriptionsActive: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gqlstream_subscriptions_active",
				Help: "Number of open subscription streams",
			},
			[]string{"transport"},
		),
		subscriptionFrames: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gqlstream_subscription_frames_total",
				Help: "Total number of results delivered on subscription streams",
			},
			[]string{"transport"},
		),
		subscriptionsDone: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gqlstream_subscriptions_finished_total",
				Help: "Total number of finished subscription streams by terminal state",
			},
			[]string{"transport", "state"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Subscribe feeds the collectors from the global bus.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			path := pathLabel(e.Request.URL.Path)
			m.httpRequests.WithLabelValues(e.Request.Method, path, strconv.Itoa(e.Status)).Inc()
			m.httpDuration.WithLabelValues(e.Request.Method, path).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			status := "ok"
			if len(e.Errors) > 0 {
				status = "error"
			}
			typ := e.OperationType
			if typ == "" {
				typ = "unknown"
			}
			m.graphqlOperations.WithLabelValues(typ, status).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SubscriptionStart) {
			m.subscriptionsActive.WithLabelValues(e.Transport).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SubscriptionFrame) {
			m.subscriptionFrames.WithLabelValues(e.Transport).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SubscriptionFinish) {
			m.subscriptionsActive.WithLabelValues(e.Transport).Dec()
			m.subscriptionsDone.WithLabelValues(e.Transport, e.State).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// pathLabel bounds label cardinality to the served routes.
func pathLabel(p string) string {
	switch p {
	case "/", "/playground", "/ws", "/healthz", "/metrics":
		return p
	}
	return "other"
}
