// Package metrics provides Prometheus instrumentation for ogwallet.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Reconciliation metrics
	scanCyclesTotal     *prometheus.CounterVec
	scanCycleDuration   prometheus.Histogram
	scanBlocksFailed    prometheus.Counter
	transfersTotal      *prometheus.CounterVec
	refundsTotal        *prometheus.CounterVec
	pendingRequests     prometheus.Gauge
	claimsTotal         prometheus.Counter
	expiredTotal        prometheus.Counter
	verificationsTotal  *prometheus.CounterVec
	collaboratorFailure *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	scanCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogwallet_scan_cycles_total",
			Help: "Reconciliation cycles by result (ok, empty, skipped, timeout)",
		},
		[]string{"result"},
	)

	scanCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ogwallet_scan_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	scanBlocksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ogwallet_scan_blocks_failed_total",
			Help: "Blocks skipped because they could not be fetched",
		},
	)

	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogwallet_transfers_total",
			Help: "Candidate transfers by match outcome",
		},
		[]string{"outcome"},
	)

	refundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogwallet_refunds_total",
			Help: "Refund submissions by status",
		},
		[]string{"status"},
	)

	pendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ogwallet_pending_requests",
			Help: "Live verification requests",
		},
	)

	claimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ogwallet_claims_total",
			Help: "Claims finalized since start",
		},
	)

	expiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ogwallet_requests_expired_total",
			Help: "Verification requests removed by the expiry sweep",
		},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogwallet_verification_requests_total",
			Help: "Initiate calls by result",
		},
		[]string{"result"},
	)

	collaboratorFailure = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogwallet_collaborator_failures_total",
			Help: "Failed calls to grant, notify and audit collaborators",
		},
		[]string{"collaborator"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
