package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OptimizeRuns counts optimize outcomes by solver and quality tag
	OptimizeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_optimize_total", Help: "Optimize runs by solver and quality."},
		[]string{"solver", "quality"},
	)
	// OptimizeErrors counts optimize failures by kind (validation, oracle)
	OptimizeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_optimize_errors_total", Help: "Optimize failures by kind."},
		[]string{"kind"},
	)
	OptimizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "route_optimize_duration_seconds", Help: "End-to-end optimize latency.", Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10}},
		[]string{"solver"},
	)
	SolverFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "route_solver_fallbacks_total", Help: "Solver panics recovered with a nearest-neighbor plan."},
	)

	// OracleLookups counts distance oracle queries issued by the matrix builder
	OracleLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "oracle_lookups_total", Help: "Distance oracle lookups by outcome."},
		[]string{"outcome"},
	)
	OracleCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "oracle_cache_total", Help: "Distance cache hits and misses."},
		[]string{"result"},
	)

	StopTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stop_transitions_total", Help: "Stop status transitions by target status."},
		[]string{"status"},
	)
	Reoptimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_reoptimizations_total", Help: "Partial re-optimizations triggered by failed or skipped stops."},
		[]string{"outcome"},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers all collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests, HTTPDuration,
			OptimizeRuns, OptimizeErrors, OptimizeDuration, SolverFallbacks,
			OracleLookups, OracleCache,
			StopTransitions, Reoptimizations,
			WebhookDeliveries, WebhookLatency,
		)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
