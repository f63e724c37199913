// Package metrics defines the Prometheus collectors for the chat pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelgo_gate_outcomes_total",
			Help: "Gating pipeline outcomes by terminal stage",
		},
		[]string{"stage", "result"},
	)

	CandidateQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelgo_candidate_queries_total",
			Help: "Generated queries by validation result",
		},
		[]string{"result"},
	)

	QueryExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelgo_query_executions_total",
			Help: "Validated query executions by main table",
		},
		[]string{"table", "result"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "travelgo_query_duration_seconds",
			Help:    "Validated query execution time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	GeneratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelgo_generator_calls_total",
			Help: "Text generator calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	MCPToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "travelgo_mcp_tool_calls_total",
			Help: "MCP tool calls by tool and result",
		},
		[]string{"tool", "result"},
	)
)

// Result labels.
const (
	ResultPassed   = "passed"
	ResultBlocked  = "blocked"
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultSuccess  = "success"
	ResultEmpty    = "empty"
	ResultError    = "error"
	ResultCached   = "cached"
	ResultFallback = "fallback"
)
