package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "repcoach"

var (
	metricTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Conversational turns processed, by detected intent.",
	}, []string{"intent"})
	metricTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "Wall time spent processing a turn.",
		Buckets:   prometheus.DefBuckets,
	})
	metricToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_executions_total",
		Help:      "Tool executions by tool and outcome.",
	}, []string{"tool", "outcome"})
	metricToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tool_duration_seconds",
		Help:      "Tool execution latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool"})
	metricBackendCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_calls_total",
		Help:      "Language model backend calls by tier and outcome.",
	}, []string{"tier", "outcome"})
	metricTierFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tier_fallbacks_total",
		Help:      "Pipeline stages retried on the alternate tier.",
	}, []string{"stage"})
	metricClarifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clarifications_total",
		Help:      "Clarification state transitions by outcome.",
	}, []string{"outcome"})
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Sessions currently held in memory.",
	})
)

// RecordTurn counts a completed turn.
func RecordTurn(intentName string, elapsed time.Duration) {
	metricTurns.WithLabelValues(intentName).Inc()
	metricTurnDuration.Observe(elapsed.Seconds())
}

// RecordToolExecution counts a tool run. outcome is success, failure or
// exception.
func RecordToolExecution(tool, outcome string, elapsed time.Duration) {
	metricToolExecutions.WithLabelValues(tool, outcome).Inc()
	metricToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordBackendCall counts a backend call on a tier.
func RecordBackendCall(tier string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metricBackendCalls.WithLabelValues(tier, outcome).Inc()
}

// RecordTierFallback counts a stage retried on the other tier.
func RecordTierFallback(stage string) {
	metricTierFallbacks.WithLabelValues(stage).Inc()
}

// RecordClarification counts a clarification transition.
func RecordClarification(outcome string) {
	metricClarifications.WithLabelValues(outcome).Inc()
}

// SetActiveSessions reports the live session count.
func SetActiveSessions(n int) {
	metricActiveSessions.Set(float64(n))
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
