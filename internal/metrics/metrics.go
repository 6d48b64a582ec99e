// Package metrics exposes Prometheus collectors for the publisher and consumer.
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

var (
	publishCyclesTotal         *prometheus.CounterVec
	publishCyclesSkippedTotal  prometheus.Counter
	noticesTotal               *prometheus.CounterVec
	stageOutcomesTotal         *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	geocodeAttemptsTotal       *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		publishCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_publish_cycles_total",
				Help: "Publisher cycles, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		publishCyclesSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "noticewatch_publish_cycles_skipped_total",
				Help: "Ticks skipped because the previous cycle was still running.",
			},
		)

		noticesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_notices_total",
				Help: "Notices seen by the publisher, labeled by disposition (fetched, new, published, dropped).",
			},
			[]string{"disposition"},
		)

		stageOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_stage_outcomes_total",
				Help: "Consumer stage results, labeled by stage and status.",
			},
			[]string{"stage", "status"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "noticewatch_stage_duration_seconds",
				Help:    "Consumer stage latency, labeled by stage.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		)

		geocodeAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "noticewatch_geocode_attempts_total",
				Help: "Geocoder calls, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "noticewatch_active_workers",
				Help: "Number of consumer workers currently processing an event.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "noticewatch_rate_limit_delays_seconds",
				Help:    "Time spent waiting on the geocoder rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle records a finished publisher cycle.
func ObserveCycle(outcome string) {
	Init()
	publishCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCycleSkipped records a tick that found the previous cycle running.
func ObserveCycleSkipped() {
	Init()
	publishCyclesSkippedTotal.Inc()
}

// AddNotices adds n to the counter for disposition.
func AddNotices(disposition string, n int) {
	if n <= 0 {
		return
	}
	Init()
	noticesTotal.WithLabelValues(disposition).Add(float64(n))
}

// ObserveStage records a consumer stage result and its latency.
func ObserveStage(stage, status string, duration time.Duration) {
	Init()
	stageOutcomesTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveGeocodeAttempt records one geocoder call.
func ObserveGeocodeAttempt(result string) {
	Init()
	geocodeAttemptsTotal.WithLabelValues(result).Inc()
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

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
