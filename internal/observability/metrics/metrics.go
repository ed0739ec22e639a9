// Package metrics defines the gateway's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics holds every instrument the gateway records. Construct one
// per process with NewGatewayMetrics and share it by pointer.
type GatewayMetrics struct {
	InboundMessages  *prometheus.CounterVec
	OutboundMessages *prometheus.CounterVec
	ModelInvocations *prometheus.CounterVec
	ToolExecutions   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	LoopIterations   prometheus.Histogram
	QueueDepth       prometheus.Gauge
}

// NewGatewayMetrics registers the gateway instruments on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid global-state collisions.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &GatewayMetrics{
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_inbound_messages_total",
			Help: "Inbound webhook messages by acceptance status.",
		}, []string{"status"}),
		OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_outbound_messages_total",
			Help: "Outbound delivery attempts by outcome.",
		}, []string{"outcome"}),
		ModelInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_model_invocations_total",
			Help: "Model invocations by outcome.",
		}, []string{"outcome"}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tool_executions_total",
			Help: "Tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "End-to-end processing time per inbound message.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"outcome"}),
		LoopIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_loop_iterations",
			Help:    "Model invocations consumed per request.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_queue_depth",
			Help: "Messages buffered in the in-memory queue.",
		}),
	}

	reg.MustRegister(
		m.InboundMessages,
		m.OutboundMessages,
		m.ModelInvocations,
		m.ToolExecutions,
		m.RequestDuration,
		m.LoopIterations,
		m.QueueDepth,
	)
	return m
}

// ToolOutcome maps a tool result success flag to a label value.
func ToolOutcome(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}
