package agent

import (
	"context"
	"strings"

	"github.com/arcagent/gateway/internal/observability/metrics"
	"github.com/arcagent/gateway/pkg/logging"
)

// messageSender is the slice of the backend client the responder needs.
type messageSender interface {
	SendMessage(ctx context.Context, to, message string) error
}

// Responder delivers the engine's answer back to the user through the
// backend's messaging channel. Delivery is best effort: a failure is logged
// and counted, never propagated, so the inbound ack is unaffected.
type Responder struct {
	sender  messageSender
	metrics *metrics.GatewayMetrics
	logger  *logging.Logger
}

// NewResponder wires the outbound path. metrics may be nil.
func NewResponder(sender messageSender, m *metrics.GatewayMetrics, logger *logging.Logger) *Responder {
	if sender == nil {
		panic("agent: message sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{sender: sender, metrics: m, logger: logger}
}

// Deliver sends one outbound message. Empty messages are dropped.
func (r *Responder) Deliver(ctx context.Context, to, message string) {
	if strings.TrimSpace(message) == "" {
		r.logger.Warn("dropping empty outbound message", "to", to)
		return
	}

	if err := r.sender.SendMessage(ctx, to, message); err != nil {
		r.logger.Error("outbound delivery failed", "error", err, "to", to)
		r.count("error")
		return
	}
	r.count("ok")
}

func (r *Responder) count(outcome string) {
	if r.metrics != nil {
		r.metrics.OutboundMessages.WithLabelValues(outcome).Inc()
	}
}
