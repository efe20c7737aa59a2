// Package metrics exposes Prometheus collectors for document processing and answering.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "policyqa"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	DocumentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "processed_total",
			Help:      "Total number of uploaded documents processed into an index",
		},
		[]string{"backend", "status"},
	)

	DocumentChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "chunks",
			Help:      "Chunks produced per processed document",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	IndexBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Index build duration in seconds, embedding included",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend"},
	)

	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answers",
			Name:      "total",
			Help:      "Total number of answered questions",
		},
		[]string{"backend", "status"},
	)

	AnswerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "answers",
			Name:      "duration_seconds",
			Help:      "Question answering latency in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of live sessions",
		},
	)
)

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordDocument records a processed document.
func RecordDocument(backend string, chunks int, elapsed time.Duration, err error) {
	DocumentsProcessed.WithLabelValues(backend, Status(err)).Inc()
	if err != nil {
		return
	}
	DocumentChunks.Observe(float64(chunks))
	IndexBuildDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// RecordAnswer records an answered (or failed) question.
func RecordAnswer(backend string, elapsed time.Duration, err error) {
	AnswersTotal.WithLabelValues(backend, Status(err)).Inc()
	AnswerDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
