// Package metrics provides Prometheus instrumentation for ntunames.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	initOnce    sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Registrar metrics
	contractCallTotal    *prometheus.CounterVec
	contractCallDuration *prometheus.HistogramVec
	transactionTotal     *prometheus.CounterVec
	transactionDuration  *prometheus.HistogramVec

	// Auction metrics
	phaseResolvedTotal  *prometheus.CounterVec
	resolveFailureTotal *prometheus.CounterVec
	actionTotal         *prometheus.CounterVec
	schedulersActive    prometheus.Gauge
	boundaryTotal       prometheus.Counter

	// Cache metrics
	cacheRefreshTotal *prometheus.CounterVec
	cacheLookupTotal  *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered on the
// first enabled call only.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	initOnce.Do(register)
}

func register() {
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	contractCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_call_total",
			Help: "Total number of registrar read calls",
		},
		[]string{"method", "result"},
	)

	contractCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registrar_call_duration_seconds",
			Help:    "Registrar read call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	transactionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registrar_transaction_total",
			Help: "Total number of registrar transactions sent",
		},
		[]string{"method", "result"},
	)

	// Includes the wait for the receipt.
	transactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registrar_transaction_duration_seconds",
			Help:    "Registrar transaction latency in seconds, submit to receipt",
			Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
		},
		[]string{"method"},
	)

	phaseResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_phase_resolved_total",
			Help: "Total number of phase resolutions by resulting phase",
		},
		[]string{"phase"},
	)

	resolveFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_resolve_subfetch_failure_total",
			Help: "Sub-fetch failures tolerated during phase resolution",
		},
		[]string{"fetch"},
	)

	actionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_action_total",
			Help: "Total number of auction actions by outcome",
		},
		[]string{"action", "result"},
	)

	schedulersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_schedulers_active",
			Help: "Number of phase schedulers currently counting down",
		},
	)

	boundaryTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_phase_boundary_total",
			Help: "Total number of phase boundaries crossed by local schedulers",
		},
	)

	cacheRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_cache_refresh_total",
			Help: "Total number of registered-domain cache refreshes",
		},
		[]string{"result"},
	)

	cacheLookupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_cache_lookup_total",
			Help: "Registered-domain cache lookups by outcome",
		},
		[]string{"result"},
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
