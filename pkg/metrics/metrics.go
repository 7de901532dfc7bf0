// Package metrics records Prometheus metrics for the reasoning loop and
// can render them as text for inspection.
package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the collectors for one agent instance. An explicit
// registry keeps instances independent, there is no process-global state.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal   *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	toolExecutions *prometheus.CounterVec
	llmRequests    *prometheus.CounterVec
	factsLearned   prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_queries_total",
				Help: "Total queries processed by outcome",
			},
			[]string{"status"},
		),
		queryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_query_duration_seconds",
				Help:    "End-to-end query processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		toolExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tool_executions_total",
				Help: "Tool executions by tool name and status",
			},
			[]string{"tool", "status"},
		),
		llmRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_llm_requests_total",
				Help: "LLM requests by pipeline stage and status",
			},
			[]string{"stage", "status"},
		),
		factsLearned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_facts_learned_total",
				Help: "Facts stored via the learn operation",
			},
		),
	}

	m.registry.MustRegister(
		m.queriesTotal,
		m.queryDuration,
		m.toolExecutions,
		m.llmRequests,
		m.factsLearned,
	)
	return m
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// ObserveQuery records one completed process call. Nil-safe.
func (m *Metrics) ObserveQuery(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(statusLabel(success)).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

// ObserveToolExecution records one tool run. Nil-safe.
func (m *Metrics) ObserveToolExecution(tool string, success bool) {
	if m == nil {
		return
	}
	m.toolExecutions.WithLabelValues(tool, statusLabel(success)).Inc()
}

// ObserveLLMRequest records one LLM call for a pipeline stage. Nil-safe.
func (m *Metrics) ObserveLLMRequest(stage string, success bool) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(stage, statusLabel(success)).Inc()
}

// ObserveFactLearned records one stored fact. Nil-safe.
func (m *Metrics) ObserveFactLearned() {
	if m == nil {
		return
	}
	m.factsLearned.Inc()
}

// DumpText renders all collected metrics in the Prometheus text format.
func (m *Metrics) DumpText() (string, error) {
	if m == nil {
		return "", nil
	}

	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}

	var sb strings.Builder
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(&sb, family); err != nil {
			return "", fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return sb.String(), nil
}
