package agent

import (
	"context"
	"time"

	"github.com/arcagent/gateway/internal/backend"
	"github.com/arcagent/gateway/pkg/logging"
)

// Tool result error codes fed back to the model. These are data, not Go
// errors: every failure inside the loop becomes a ToolResult the model can
// explain to the user.
const (
	CodeValidationError    = "validation_error"
	CodeUnknownTool        = "unknown_tool"
	CodeUpstreamError      = "upstream_error"
	CodeGuardrailViolation = "guardrail_violation"
)

// BackendAPI is the slice of the backend client the dispatcher needs.
type BackendAPI interface {
	RegisterUser(ctx context.Context, phone string) (*backend.WorkflowResult, error)
	VerifyCode(ctx context.Context, phone, workflowID, code string) (*backend.WorkflowResult, error)
	SendMoney(ctx context.Context, phone string, amount float64, recipient string) (*backend.WorkflowResult, error)
	CheckBalance(ctx context.Context, phone string) (*backend.BalanceResult, error)
	GetTransactionHistory(ctx context.Context, phone string, limit int) (*backend.TransactionsResult, error)
	ConfirmAction(ctx context.Context, phone, workflowID string) (*backend.WorkflowResult, error)
	CancelAction(ctx context.Context, phone, workflowID string) (*backend.WorkflowResult, error)
}

const defaultToolTimeout = 15 * time.Second

// Dispatcher executes validated tool calls against the backend operation
// contract. It never returns a Go error to the loop: transport failures,
// non-success responses and guardrail refusals all come back as failure
// ToolResults.
type Dispatcher struct {
	catalog     *Catalog
	backend     BackendAPI
	contexts    ContextStore
	guardrail   *Guardrail
	toolTimeout time.Duration
	logger      *logging.Logger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(catalog *Catalog, api BackendAPI, contexts ContextStore, guardrail *Guardrail, toolTimeout time.Duration, logger *logging.Logger) *Dispatcher {
	if catalog == nil {
		panic("agent: catalog cannot be nil")
	}
	if api == nil {
		panic("agent: backend client cannot be nil")
	}
	if contexts == nil {
		panic("agent: context store cannot be nil")
	}
	if guardrail == nil {
		panic("agent: guardrail cannot be nil")
	}
	if toolTimeout <= 0 {
		toolTimeout = defaultToolTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		catalog:     catalog,
		backend:     api,
		contexts:    contexts,
		guardrail:   guardrail,
		toolTimeout: toolTimeout,
		logger:      logger,
	}
}

// Execute runs one tool call for the given sender and returns its result.
func (d *Dispatcher) Execute(ctx context.Context, sender string, call ToolCall) ToolResult {
	spec, ok := d.catalog.Lookup(call.Name)
	if !ok {
		d.logger.Warn("model requested unregistered tool", "tool", call.Name, "sender", sender)
		return failure(call, CodeUnknownTool, "unknown tool: "+call.Name)
	}

	args, err := d.catalog.Validate(call)
	if err != nil {
		d.logger.Info("tool arguments failed validation", "tool", call.Name, "error", err)
		return failure(call, CodeValidationError, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, d.toolTimeout)
	defer cancel()

	switch spec.Name {
	case ToolRegisterUser:
		return d.registerUser(callCtx, sender, call)
	case ToolVerifyCode:
		return d.verifyCode(callCtx, sender, call, args)
	case ToolSendMoney:
		return d.sendMoney(callCtx, sender, call, args)
	case ToolCheckBalance:
		return d.checkBalance(callCtx, sender, call)
	case ToolGetTransactionHistory:
		return d.transactionHistory(callCtx, sender, call, args)
	case ToolConfirmAction:
		return d.workflowAction(callCtx, sender, call, args, d.backend.ConfirmAction)
	case ToolCancelAction:
		return d.workflowAction(callCtx, sender, call, args, d.backend.CancelAction)
	default:
		// Catalog and dispatch table are defined together; a mismatch is a
		// programming error surfaced as data.
		return failure(call, CodeUnknownTool, "tool not dispatchable: "+spec.Name)
	}
}

func (d *Dispatcher) registerUser(ctx context.Context, sender string, call ToolCall) ToolResult {
	res, err := d.backend.RegisterUser(ctx, sender)
	if err != nil {
		return failure(call, CodeUpstreamError, err.Error())
	}
	if !res.Success {
		return upstreamFailure(call, res.Error, res.Message)
	}
	if res.WorkflowID != "" {
		d.trackWorkflow(ctx, sender, res.WorkflowID, WorkflowRegistration)
	}
	return success(call, map[string]any{
		"workflow_id": res.WorkflowID,
		"message":     res.Message,
	})
}

func (d *Dispatcher) verifyCode(ctx context.Context, sender string, call ToolCall, args map[string]any) ToolResult {
	res, err := d.backend.VerifyCode(ctx, sender, args["workflowId"].(string), args["code"].(string))
	if err != nil {
		return failure(call, CodeUpstreamError, err.Error())
	}
	if !res.Success {
		return upstreamFailure(call, res.Error, res.Message)
	}
	return success(call, map[string]any{
		"message": res.Message,
	})
}

func (d *Dispatcher) sendMoney(ctx context.Context, sender string, call ToolCall, args map[string]any) ToolResult {
	amount := args["amount"].(float64)
	recipient := args["recipient"].(string)

	res, err := d.backend.SendMoney(ctx, sender, amount, recipient)
	if err != nil {
		return failure(call, CodeUpstreamError, err.Error())
	}
	if !res.Success {
		return upstreamFailure(call, res.Error, res.Message)
	}
	if res.WorkflowID != "" {
		d.trackWorkflow(ctx, sender, res.WorkflowID, WorkflowPayment)
	}
	return success(call, map[string]any{
		"workflow_id": res.WorkflowID,
		"amount":      amount,
		"recipient":   recipient,
		"message":     res.Message,
	})
}

func (d *Dispatcher) checkBalance(ctx context.Context, sender string, call ToolCall) ToolResult {
	res, err := d.backend.CheckBalance(ctx, sender)
	if err != nil {
		return failure(call, CodeUpstreamError, err.Error())
	}
	if !res.Success {
		return upstreamFailure(call, res.Error, res.Message)
	}
	return success(call, map[string]any{
		"balance":        res.Balance,
		"wallet_address": res.WalletAddress,
	})
}

func (d *Dispatcher) transactionHistory(ctx context.Context, sender string, call ToolCall, args map[string]any) ToolResult {
	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	res, err := d.backend.GetTransactionHistory(ctx, sender, limit)
	if err != nil {
		return failure(call, CodeUpstreamError, err.Error())
	}
	if !res.Success {
		return upstreamFailure(call, res.Error, "")
	}

	transactions := make([]any, 0, len(res.Transactions))
	for _, tx := range res.Transactions {
		transactions = append(transactions, map[string]any{
			"type":      tx.Type,
			"amount":    tx.Amount,
			"recipient": tx.Recipient,
			"status":    tx.Status,
			"date":      tx.CreatedAt,
		})
	}
	return success(call, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

type workflowActionFunc func(ctx context.Context, phone, workflowID string) (*backend.WorkflowResult, error)

func (d *Dispatcher) workflowAction(ctx context.Context, sender string, call ToolCall, args map[string]any, action workflowActionFunc) ToolResult {
	explicitID, _ := args["workflowId"].(string)

	decision, err := d.guardrail.Check(ctx, sender, explicitID)
	if err != nil {
		return failure(call, CodeUpstreamError, err.Error())
	}
	if !decision.Permitted {
		d.logger.Info("guardrail refused workflow action", "tool", call.Name, "sender", sender, "reason", decision.Reason)
		return failure(call, CodeGuardrailViolation, decision.Reason)
	}

	res, err := action(ctx, sender, decision.WorkflowID)

	// One attempt consumes the pending marker whether or not the backend
	// reported success.
	d.guardrail.Consume(ctx, sender)

	if err != nil {
		return failure(call, CodeUpstreamError, err.Error())
	}
	if !res.Success {
		return upstreamFailure(call, res.Error, res.Message)
	}
	return success(call, map[string]any{
		"workflow_id": decision.WorkflowID,
		"message":     res.Message,
	})
}

func (d *Dispatcher) trackWorkflow(ctx context.Context, sender, workflowID, workflowType string) {
	err := d.contexts.Set(ctx, sender, WorkflowContext{
		LastWorkflowID:   workflowID,
		LastWorkflowType: workflowType,
	})
	if err != nil {
		d.logger.Error("failed to track workflow context", "error", err, "sender", sender, "workflow_id", workflowID)
	}
}

func success(call ToolCall, payload map[string]any) ToolResult {
	return ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Success: true,
		Payload: payload,
	}
}

func failure(call ToolCall, code, message string) ToolResult {
	return ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Success: false,
		Error:   message,
		Code:    code,
	}
}

func upstreamFailure(call ToolCall, errText, message string) ToolResult {
	reason := errText
	if reason == "" {
		reason = message
	}
	if reason == "" {
		reason = "backend reported failure"
	}
	return failure(call, CodeUpstreamError, reason)
}
