// Package metrics exposes Prometheus counters and histograms for the
// MessagePipeline, ToolRegistry, and CapabilityEvolutionEngine — the three
// components whose throughput and failure rate an operator needs visibility
// into at runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a nil-safe collector: every Record method checks for a nil
// receiver, so Dependencies.Metrics can be left unset in tests and one-shot
// CLI commands without guarding every call site.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	MessageDuration   *prometheus.HistogramVec

	ToolExecutions *prometheus.CounterVec
	ToolDuration   *prometheus.HistogramVec

	EvolutionAttempts  *prometheus.CounterVec
	CapabilitiesActive *prometheus.GaugeVec
}

// New creates and registers every metric against the default Prometheus
// registry. Call once at process startup.
func New() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_messages_processed_total",
				Help: "Total number of inbound messages processed by the pipeline, by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		MessageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_message_duration_seconds",
				Help:    "Time to process one inbound message end to end",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"channel"},
		),
		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total number of tool executions, by tool name and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Duration of a single tool execution",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool"},
		),
		EvolutionAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_evolution_attempts_total",
				Help: "Total number of capability evolution attempts, by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		CapabilitiesActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentcore_capabilities_active",
				Help: "Number of capabilities currently active, blocked, or evolving",
			},
			[]string{"status"},
		),
	}
}

// RecordMessage records the outcome and duration of one pipeline Process call.
func (m *Metrics) RecordMessage(channel, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.MessagesProcessed.WithLabelValues(channel, outcome).Inc()
	m.MessageDuration.WithLabelValues(channel).Observe(durationSeconds)
}

// RecordTool records the outcome and duration of one tool execution.
func (m *Metrics) RecordTool(tool, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordEvolutionAttempt records one generate/compile/validate/load stage
// outcome of a capability evolution run.
func (m *Metrics) RecordEvolutionAttempt(stage, outcome string) {
	if m == nil {
		return
	}
	m.EvolutionAttempts.WithLabelValues(stage, outcome).Inc()
}

// SetCapabilitiesActive sets the current gauge value for a capability status.
func (m *Metrics) SetCapabilitiesActive(status string, count int) {
	if m == nil {
		return
	}
	m.CapabilitiesActive.WithLabelValues(status).Set(float64(count))
}
