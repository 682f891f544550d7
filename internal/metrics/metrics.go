// Package metrics exposes Prometheus collectors for the crawl worker.
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
	jobsTotal                  *prometheus.CounterVec
	crawlDurationSeconds       *prometheus.HistogramVec
	uploadsTotal               *prometheus.CounterVec
	lockAttemptsTotal          *prometheus.CounterVec
	dequeueTotal               *prometheus.CounterVec
	activeCrawls               prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcrawl_jobs_total",
				Help: "Jobs finished, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "broadcrawl_crawl_duration_seconds",
				Help:    "Wall time of the crawl process, labeled by outcome.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"outcome"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcrawl_uploads_total",
				Help: "Artifact uploads, labeled by result.",
			},
			[]string{"result"},
		)

		lockAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcrawl_lock_attempts_total",
				Help: "Claim lock acquisition attempts, labeled by result.",
			},
			[]string{"result"},
		)

		dequeueTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcrawl_dequeue_total",
				Help: "Blocking dequeue calls, labeled by result.",
			},
			[]string{"result"},
		)

		activeCrawls = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcrawl_active_crawls",
				Help: "Number of crawl processes currently running.",
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 30, 300},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob records a finished job and its crawl duration.
func ObserveJob(outcome string, duration time.Duration) {
	jobsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		crawlDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// ObserveUpload counts one artifact upload.
func ObserveUpload(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	uploadsTotal.WithLabelValues(result).Inc()
}

// ObserveLockAttempt counts a claim attempt: acquired, contended or error.
func ObserveLockAttempt(result string) {
	lockAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveDequeue counts a dequeue: job, timeout, malformed or error.
func ObserveDequeue(result string) {
	dequeueTotal.WithLabelValues(result).Inc()
}

// IncActiveCrawls increments the active crawl gauge.
func IncActiveCrawls() {
	activeCrawls.Inc()
}

// DecActiveCrawls decrements the active crawl gauge.
func DecActiveCrawls() {
	activeCrawls.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
