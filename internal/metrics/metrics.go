// Package metrics exposes Prometheus instrumentation for the LLM
// transport layer: attempt counts and attempt latency, broken down by
// provider and outcome. It is internal and has no HTTP exposition of
// its own; callers register the default Prometheus registry with
// whatever server they already run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "negotiator",
			Name:      "llm_attempts_total",
			Help:      "Total number of LLM provider invocations, by provider and success.",
		},
		[]string{"provider", "success"},
	)

	llmAttemptLatencyMs = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "negotiator",
			Name:      "llm_attempt_latency_ms",
			Help:      "Latency of a single LLM provider attempt, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(50, 2, 12),
		},
		[]string{"provider"},
	)
)

// ObserveLLMAttempt records one provider attempt's outcome and latency.
func ObserveLLMAttempt(provider string, success bool, latencyMs int64) {
	llmAttemptsTotal.WithLabelValues(provider, boolLabel(success)).Inc()
	llmAttemptLatencyMs.WithLabelValues(provider).Observe(float64(latencyMs))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
