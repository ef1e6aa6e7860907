package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysisTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairstay_analysis_transitions_total",
			Help: "Image analysis status transitions written to the record store",
		},
		[]string{"status"}, // processing, completed, failed
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fairstay_inference_duration_seconds",
			Help:    "Duration of calls to the inference service",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"}, // ok, rejected, unreachable, malformed, credentials
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairstay_http_requests_total",
			Help: "HTTP requests served, by route pattern",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fairstay_http_request_duration_seconds",
			Help:    "HTTP request latency, by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordTransition(status string) {
	AnalysisTransitions.WithLabelValues(status).Inc()
}

func RecordInference(outcome string, d time.Duration) {
	InferenceDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordRequest counts one request; route is the matched pattern, not the raw path.
func RecordRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
