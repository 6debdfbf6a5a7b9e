// Package metrics exposes Prometheus collectors for the gazette watcher.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	sectionFetchesTotal        *prometheus.CounterVec
	sectionEntriesTotal        *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_http_requests_total",
				Help: "Total number of dashboard HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gazette_http_request_duration_seconds",
				Help:    "Histogram of dashboard HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		sectionFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_section_fetches_total",
				Help: "Total number of gazette section fetches, labeled by section and status.",
			},
			[]string{"section", "status"},
		)

		sectionEntriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_section_entries_total",
				Help: "Total number of entries parsed, labeled by section.",
			},
			[]string{"section"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_runs_total",
				Help: "Total number of watcher runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gazette_run_duration_seconds",
				Help:    "Histogram of watcher run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gazette_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"host"},
		)
	})
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSectionFetch records one section fetch.
func ObserveSectionFetch(section, status string, entries int) {
	Init()
	sectionFetchesTotal.WithLabelValues(section, status).Inc()
	if entries > 0 {
		sectionEntriesTotal.WithLabelValues(section).Add(float64(entries))
	}
}

// ObserveRun records a finished run.
func ObserveRun(outcome string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(outcome).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting for a rate limit token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}
