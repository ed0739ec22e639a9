package agent

import (
	"context"
	"fmt"

	"github.com/arcagent/gateway/pkg/logging"
)

// Guardrail restricts confirm/cancel to an eligible pending payment. It is
// consulted before the backend call is issued and consumes the pending
// workflow marker afterwards.
type Guardrail struct {
	contexts ContextStore
	logger   *logging.Logger
}

// NewGuardrail builds the policy over the given context store.
func NewGuardrail(contexts ContextStore, logger *logging.Logger) *Guardrail {
	if contexts == nil {
		panic("agent: context store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Guardrail{contexts: contexts, logger: logger}
}

// Decision is the outcome of a guardrail check.
type Decision struct {
	Permitted  bool
	WorkflowID string
	Reason     string
}

// Check resolves the target workflow id for a confirm/cancel request. The
// explicit argument wins over the stored context. The request is permitted
// only when an id resolves and the tracked workflow is a payment;
// registration workflows are verified through their own tool and are never
// confirm/cancel eligible.
func (g *Guardrail) Check(ctx context.Context, sender, explicitID string) (Decision, error) {
	wc, err := g.contexts.Get(ctx, sender)
	if err != nil {
		return Decision{}, fmt.Errorf("agent: guardrail context lookup: %w", err)
	}

	workflowID := explicitID
	if workflowID == "" {
		workflowID = wc.LastWorkflowID
	}

	if workflowID == "" || wc.LastWorkflowType != WorkflowPayment {
		return Decision{
			Permitted: false,
			Reason:    "no pending payment to confirm or cancel",
		}, nil
	}

	return Decision{Permitted: true, WorkflowID: workflowID}, nil
}

// Consume clears the sender's pending workflow marker. Called after the
// backend confirm/cancel call returns, regardless of its success flag: one
// attempt spends the marker exactly once.
func (g *Guardrail) Consume(ctx context.Context, sender string) {
	if err := g.contexts.Set(ctx, sender, WorkflowContext{}); err != nil {
		g.logger.Error("failed to clear workflow context", "error", err, "sender", sender)
	}
}
