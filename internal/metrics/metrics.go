// Package metrics exposes Prometheus collectors for remote calls, quota usage,
// and blog lifecycle activity.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remoteCallsTotal           *prometheus.CounterVec
	remoteCallDurationSeconds  *prometheus.HistogramVec
	quotaWaitSeconds           prometheus.Histogram
	quotaRemaining             *prometheus.GaugeVec
	blogTransitionsTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		remoteCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuml_remote_calls_total",
				Help: "Total number of remote API calls, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		remoteCallDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tuml_remote_call_duration_seconds",
				Help:    "Histogram of remote API call latencies, labeled by operation.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		)

		quotaWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tuml_quota_wait_seconds",
				Help:    "Histogram of sleeps taken while the call quota was exceeded.",
				Buckets: []float64{1, 5, 15, 30, 45, 60},
			},
		)

		quotaRemaining = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tuml_quota_remaining_calls",
				Help: "Calls remaining in the current quota window.",
			},
			[]string{"window"},
		)

		blogTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuml_blog_transitions_total",
				Help: "Total number of blog lifecycle changes, labeled by source and target state.",
			},
			[]string{"from", "to"},
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
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRemoteCall records one remote call and its latency.
func ObserveRemoteCall(operation, outcome string, duration time.Duration) {
	Init()
	remoteCallsTotal.WithLabelValues(operation, outcome).Inc()
	remoteCallDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveQuotaWait records one governor sleep.
func ObserveQuotaWait(duration time.Duration) {
	Init()
	quotaWaitSeconds.Observe(duration.Seconds())
}

// SetQuotaRemaining publishes the remaining calls for a window (minute, hour, day).
func SetQuotaRemaining(window string, remaining int) {
	Init()
	quotaRemaining.WithLabelValues(window).Set(float64(remaining))
}

// ObserveTransition increments the lifecycle counter. An empty from marks a new record.
func ObserveTransition(from, to string) {
	Init()
	if from == "" {
		from = "none"
	}
	blogTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, statusText(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
