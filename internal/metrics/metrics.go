// Package metrics exposes Prometheus collectors for the verdict crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Unit outcomes used as label values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFaulted   = "faulted"
	OutcomeCancelled = "cancelled"
)

var (
	unitsTotal            *prometheus.CounterVec
	faultsTotal           *prometheus.CounterVec
	fetchDurationSeconds  *prometheus.HistogramVec
	verdictsStoredTotal   prometheus.Counter
	inflightUnits         prometheus.Gauge
	activeWorkers         prometheus.Gauge
	checkpointWritesTotal *prometheus.CounterVec
	runsTotal             *prometheus.CounterVec
	httpRequestsTotal     *prometheus.CounterVec
	rateLimitDelay        *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_units_total",
				Help: "Total number of work units accounted for, labeled by origin and outcome.",
			},
			[]string{"origin", "outcome"},
		)

		faultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_faults_total",
				Help: "Total number of fault records, labeled by classification.",
			},
			[]string{"kind"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verdict_fetch_duration_seconds",
				Help:    "Histogram of fetch/extract latencies, labeled by outcome.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		)

		verdictsStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "verdict_verdicts_stored_total",
				Help: "Total number of verdicts written to the store.",
			},
		)

		inflightUnits = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "verdict_inflight_units",
				Help: "Number of units currently being fetched or stored.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "verdict_active_workers",
				Help: "Number of worker goroutines currently running.",
			},
		)

		checkpointWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_checkpoint_writes_total",
				Help: "Total number of checkpoint writes, labeled by result.",
			},
			[]string{"result"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_runs_total",
				Help: "Total number of crawl runs, labeled by mode and result.",
			},
			[]string{"mode", "result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdict_http_requests_total",
				Help: "Requests served by the metrics endpoint, labeled by method, route, and status code.",
			},
			[]string{"method", "route", "code"},
		)

		rateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verdict_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a request token, labeled by host.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUnit counts a unit outcome.
func ObserveUnit(origin, outcome string) {
	Init()
	unitsTotal.WithLabelValues(origin, outcome).Inc()
}

// ObserveFault counts a fault by classification.
func ObserveFault(kind string) {
	Init()
	faultsTotal.WithLabelValues(kind).Inc()
}

// ObserveFetch records a fetch latency.
func ObserveFetch(outcome string, d time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// AddVerdictsStored increments the stored verdict counter.
func AddVerdictsStored(n int) {
	Init()
	if n > 0 {
		verdictsStoredTotal.Add(float64(n))
	}
}

// IncInflight increments the in-flight units gauge.
func IncInflight() {
	Init()
	inflightUnits.Inc()
}

// DecInflight decrements the in-flight units gauge.
func DecInflight() {
	Init()
	inflightUnits.Dec()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveCheckpointWrite counts a checkpoint write attempt.
func ObserveCheckpointWrite(ok bool) {
	Init()
	result := "success"
	if !ok {
		result = "error"
	}
	checkpointWritesTotal.WithLabelValues(result).Inc()
}

// ObserveRun counts a finished run.
func ObserveRun(mode, result string) {
	Init()
	runsTotal.WithLabelValues(mode, result).Inc()
}

// ObserveHTTPRequest counts a request served by the metrics router.
func ObserveHTTPRequest(method, route string, status int) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ObserveRateLimitDelay records time spent waiting on the per-host limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelay.WithLabelValues(host).Observe(d.Seconds())
}
