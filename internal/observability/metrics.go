package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	leases          *prometheus.CounterVec
	commits         *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	routing         *prometheus.CounterVec
}

// NewMetrics registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_router_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lead_router_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_router_http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		leases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_router_leases_total",
			Help: "Next-available lead requests by outcome.",
		}, []string{"outcome"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_router_commits_total",
			Help: "Order commits by resulting status.",
		}, []string{"status"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_router_erp_dispatches_total",
			Help: "ERP dispatch attempts by result.",
		}, []string{"result"}),
		routing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lead_router_routing_actions_total",
			Help: "Routing actions applied by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors, m.leases, m.commits, m.dispatches, m.routing,
	)
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordLease counts a lease request outcome ("granted" or "empty").
func (m *Metrics) RecordLease(outcome string) {
	if m == nil {
		return
	}
	m.leases.WithLabelValues(outcome).Inc()
}

// RecordCommit counts a committed order by its final status.
func (m *Metrics) RecordCommit(status string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(status).Inc()
}

// RecordDispatch counts an ERP dispatch result.
func (m *Metrics) RecordDispatch(result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(result).Inc()
}

// RecordRouting counts an applied routing action.
func (m *Metrics) RecordRouting(kind string) {
	if m == nil {
		return
	}
	m.routing.WithLabelValues(kind).Inc()
}
