package services

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics, auto-registered on the default registry.
var (
	// completionCallsTotal counts completion calls by pipeline stage.
	//
	// Labels:
	//   - stage: "agent", "cypher_generate", "cypher_correct", "entity_extract"
	//   - status: "success" or error class
	completionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partgraph",
			Name:      "completion_calls_total",
			Help:      "Total completion endpoint calls.",
		},
		[]string{"stage", "status"},
	)

	completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "partgraph",
			Name:      "completion_duration_seconds",
			Help:      "Duration of completion endpoint calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// graphQueriesTotal counts graph store executions.
	//
	// Labels:
	//   - pipeline: "query", "search_all", "search_similarity"
	//   - outcome: "rows", "empty", "error"
	graphQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partgraph",
			Name:      "graph_queries_total",
			Help:      "Total graph store query executions.",
		},
		[]string{"pipeline", "outcome"},
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partgraph",
			Name:      "tool_calls_total",
			Help:      "Total agent tool dispatches.",
		},
		[]string{"tool", "status"},
	)

	// agentTurnsTotal counts finished turns.
	//
	// Labels:
	//   - outcome: "answer", "iteration_limit", "provider_error"
	agentTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partgraph",
			Name:      "agent_turns_total",
			Help:      "Total agent turns by outcome.",
		},
		[]string{"outcome"},
	)

	agentIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "partgraph",
			Name:      "agent_iterations",
			Help:      "Thought steps taken per turn.",
			Buckets:   prometheus.LinearBuckets(1, 1, 15),
		},
	)
)

// classifyError maps an error to a label-safe class to keep metric
// cardinality bounded.
func classifyError(err error) string {
	if err == nil {
		return "success"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"),
		strings.Contains(msg, "context canceled"),
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return "rate_limit"
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "server error"):
		return "server"
	default:
		return "error"
	}
}

func recordCompletion(stage string, start time.Time, err error) {
	completionCallsTotal.WithLabelValues(stage, classifyError(err)).Inc()
	completionDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func recordGraphQuery(pipeline string, rows int, err error) {
	outcome := "rows"
	switch {
	case err != nil:
		outcome = "error"
	case rows == 0:
		outcome = "empty"
	}
	graphQueriesTotal.WithLabelValues(pipeline, outcome).Inc()
}
