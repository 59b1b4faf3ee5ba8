// Package metrics exposes Prometheus collectors for HTTP traffic and ebook
// generation.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/workflow"
)

const namespace = "ebooks"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Provider calls, labelled by operation (generate, cover, continue).
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total number of provider calls",
		},
		[]string{"operation", "outcome"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of in-memory ebook sessions",
		},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "total",
			Help:      "Total number of ebook exports",
		},
		[]string{"format", "outcome"},
	)
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Middleware records request counts and latencies per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// Observer records workflow provider calls.
type Observer struct{}

// ObserveOperation implements workflow.Observer.
func (Observer) ObserveOperation(op workflow.Operation, elapsed time.Duration, err error) {
	ProviderCallsTotal.WithLabelValues(string(op), outcome(err)).Inc()
	ProviderCallDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

var _ workflow.Observer = Observer{}

// outcome classifies err into a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ebook.ErrGeneration), errors.Is(err, ebook.ErrCoverGeneration), errors.Is(err, ebook.ErrContinuation):
		return OutcomeFailure
	default:
		return "error"
	}
}

// ObserveExport records an export attempt.
func ObserveExport(format string, err error) {
	result := OutcomeSuccess
	if err != nil {
		result = OutcomeFailure
	}
	ExportsTotal.WithLabelValues(format, result).Inc()
}
