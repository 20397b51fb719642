package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StepTranscription = "transcription"
	StepCorrection    = "correction"

	OutcomeSuccess            = "success"
	OutcomePartialFailure     = "partial_failure"
	OutcomeFailure            = "failure"
	OutcomeCommitFailure      = "commit_failure"
	OutcomeInsufficientCredit = "insufficient_credits"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "essay_corrector",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "essay_corrector",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"method", "path"},
	)

	pipelineSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "essay_corrector",
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Billable pipeline steps by outcome.",
		},
		[]string{"step", "outcome"},
	)

	aiCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "essay_corrector",
			Subsystem: "pipeline",
			Name:      "ai_call_duration_seconds",
			Help:      "Duration of individual language model calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"step"},
	)

	creditsDebited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "essay_corrector",
			Subsystem: "credits",
			Name:      "debited_total",
			Help:      "Credits debited from user balances.",
		},
		[]string{"step"},
	)

	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "essay_corrector",
			Subsystem: "uploads",
			Name:      "papers_total",
			Help:      "Exam paper uploads by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		pipelineSteps,
		aiCallDuration,
		creditsDebited,
		uploads,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latencies per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordStep(step, outcome string) {
	pipelineSteps.WithLabelValues(step, outcome).Inc()
}

func ObserveAICall(step string, d time.Duration) {
	aiCallDuration.WithLabelValues(step).Observe(d.Seconds())
}

func RecordDebit(step string, credits int) {
	if credits > 0 {
		creditsDebited.WithLabelValues(step).Add(float64(credits))
	}
}

func RecordUpload(outcome string) {
	uploads.WithLabelValues(outcome).Inc()
}
