package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	SubmissionAccepted = "accepted"
	SubmissionRejected = "rejected"
	SubmissionFailed   = "failed"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Submissions handled by the intake pipeline, by result.",
		},
		[]string{"result"},
	)

	deliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Delivery attempts to the external endpoint, by outcome.",
		},
		[]string{"outcome"},
	)
	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_seconds",
			Help:    "Time spent on a single delivery attempt (seconds).",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	redeliveryJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redelivery_jobs_total",
			Help: "Redelivery queue jobs processed by the worker, by result.",
		},
		[]string{"result"},
	)
	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by group.",
		},
		[]string{"group"},
	)
	rateLimiterErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limiter_backend_errors_total",
			Help: "Rate limit checks that could not reach the shared backend and were allowed.",
		},
	)
	panicsRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "http_panics_recovered_total",
			Help: "Handler panics turned into 500 responses.",
		},
	)
	reconcilePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconcile_pending_submissions",
			Help: "Undelivered submissions seen by the last reconciliation sweep.",
		},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			submissionsTotal,
			deliveryAttempts,
			deliveryDuration,
			redeliveryJobs,
			reconcilePending,
			rateLimited,
			panicsRecovered,
			rateLimiterErrors,
		)
	})
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// HTTPMiddleware records request counts and latency per route.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// ObserveHTTPRequest records a finished HTTP request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// IncSubmission counts a pipeline result (accepted, rejected, failed).
func IncSubmission(result string) { submissionsTotal.WithLabelValues(result).Inc() }

// ObserveDelivery records one delivery attempt.
func ObserveDelivery(outcome string, d time.Duration) {
	deliveryAttempts.WithLabelValues(outcome).Inc()
	if d < 0 {
		d = 0
	}
	deliveryDuration.Observe(d.Seconds())
}

// IncRedeliveryJob counts a processed redelivery queue message.
func IncRedeliveryJob(result string) { redeliveryJobs.WithLabelValues(result).Inc() }

// IncRateLimited counts a request rejected by the rate limiter.
func IncRateLimited(group string) { rateLimited.WithLabelValues(group).Inc() }

// IncRateLimiterError counts a limiter backend failure.
func IncRateLimiterError() { rateLimiterErrors.Inc() }

// IncPanicRecovered counts a recovered handler panic.
func IncPanicRecovered() { panicsRecovered.Inc() }

// SetReconcilePending reports the size of the last reconciliation batch.
func SetReconcilePending(n int) { reconcilePending.Set(float64(n)) }

// DeliveryAttempts returns the attempt counter for an outcome.
func DeliveryAttempts(outcome string) prometheus.Counter {
	return deliveryAttempts.WithLabelValues(outcome)
}

// Submissions returns the counter for a pipeline result.
func Submissions(result string) prometheus.Counter {
	return submissionsTotal.WithLabelValues(result)
}

// RedeliveryJobs returns the counter for a redelivery result.
func RedeliveryJobs(result string) prometheus.Counter {
	return redeliveryJobs.WithLabelValues(result)
}
