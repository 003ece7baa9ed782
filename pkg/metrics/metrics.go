package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every collector of the service. It is built once in main and
// passed to the components that record into it. A nil *Registry is valid and
// records nothing, which keeps tests free of metrics plumbing.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequestsTotal       *prometheus.CounterVec
	RequestLatency          prometheus.Histogram
	WebhookRequestsTotal    *prometheus.CounterVec
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	CircuitBreakerState     *prometheus.GaugeVec
	CircuitBreakerRequests  *prometheus.CounterVec
	CircuitBreakerFailures  *prometheus.CounterVec
	RateLimitRequestsTotal  *prometheus.CounterVec
	StatsCacheRequestsTotal *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests received (count)",
			},
			[]string{"path", "status"},
		),

		RequestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "request_latency_ms",
				Help:    "Request latency in milliseconds",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000},
			},
		),

		WebhookRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_requests_total",
				Help: "Total webhook processing outcomes (count)",
			},
			[]string{"result"},
		),

		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_queries_total",
				Help: "Total number of message store operations (count)",
			},
			[]string{"backend", "operation", "status"},
		),

		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_ms",
				Help:    "Duration of message store operations in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"backend", "operation"},
		),

		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
			},
			[]string{"name"},
		),

		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_requests_total",
				Help: "Total number of requests through circuit breaker (count)",
			},
			[]string{"name", "state"},
		),

		CircuitBreakerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_failures_total",
				Help: "Total number of failures through circuit breaker (count)",
			},
			[]string{"name"},
		),

		RateLimitRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_requests_total",
				Help: "Total number of requests checked against rate limit (count)",
			},
			[]string{"status"},
		),

		StatsCacheRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_cache_requests_total",
				Help: "Stats cache lookups by result (count)",
			},
			[]string{"result"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.HTTPRequestsTotal,
		r.RequestLatency,
		r.WebhookRequestsTotal,
		r.DatabaseQueriesTotal,
		r.DatabaseQueryDuration,
		r.CircuitBreakerState,
		r.CircuitBreakerRequests,
		r.CircuitBreakerFailures,
		r.RateLimitRequestsTotal,
		r.StatsCacheRequestsTotal,
	)

	return r
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the text exposition format for this registry only.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) IncHTTPRequest(path string, status int) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func (r *Registry) ObserveRequestLatency(d time.Duration) {
	if r == nil {
		return
	}
	r.RequestLatency.Observe(float64(d.Microseconds()) / 1000)
}

func (r *Registry) IncWebhookOutcome(result string) {
	if r == nil {
		return
	}
	r.WebhookRequestsTotal.WithLabelValues(result).Inc()
}

func (r *Registry) IncDatabaseQuery(backend, operation, status string) {
	if r == nil {
		return
	}
	r.DatabaseQueriesTotal.WithLabelValues(backend, operation, status).Inc()
}

func (r *Registry) ObserveDatabaseQueryDuration(backend, operation string, d time.Duration) {
	if r == nil {
		return
	}
	r.DatabaseQueryDuration.WithLabelValues(backend, operation).Observe(float64(d.Milliseconds()))
}

func (r *Registry) SetCircuitBreakerState(name string, state float64) {
	if r == nil {
		return
	}
	r.CircuitBreakerState.WithLabelValues(name).Set(state)
}

func (r *Registry) IncCircuitBreakerRequest(name, state string, success bool) {
	if r == nil {
		return
	}
	r.CircuitBreakerRequests.WithLabelValues(name, state).Inc()
	if !success {
		r.CircuitBreakerFailures.WithLabelValues(name).Inc()
	}
}

func (r *Registry) IncRateLimit(status string) {
	if r == nil {
		return
	}
	r.RateLimitRequestsTotal.WithLabelValues(status).Inc()
}

func (r *Registry) IncStatsCache(result string) {
	if r == nil {
		return
	}
	r.StatsCacheRequestsTotal.WithLabelValues(result).Inc()
}
