package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arcagent/gateway/internal/observability/metrics"
	"github.com/arcagent/gateway/pkg/logging"
)

var engineTracer = otel.Tracer("arcagent.internal.agent.engine")

// maxModelTurns bounds how many times one inbound message may invoke the
// model. When the budget runs out the best answer produced so far is used.
const maxModelTurns = 5

// FallbackReply is sent when the model itself fails and no answer exists.
const FallbackReply = "Sorry, something went wrong on our side. Please try again in a moment."

// exhaustedReply covers the rare case where the model keeps requesting tools
// until the turn budget runs out without ever producing text.
const exhaustedReply = "I wasn't able to finish that request. Please try again, or rephrase what you need."

// ErrModelInvocation marks failures of the model call itself, as opposed to
// tool failures, which stay inside the loop as data.
var ErrModelInvocation = errors.New("agent: model invocation failed")

// Engine runs the tool-calling loop for one inbound message at a time. It
// implements Service.
type Engine struct {
	llm            LLMClient
	catalog        *Catalog
	contexts       ContextStore
	dispatcher     *Dispatcher
	modelID        string
	modelTimeout   time.Duration
	requestCeiling time.Duration
	metrics        *metrics.GatewayMetrics
	logger         *logging.Logger
}

// NewEngine wires the orchestration loop. metrics may be nil.
func NewEngine(llm LLMClient, catalog *Catalog, contexts ContextStore, dispatcher *Dispatcher, modelID string, modelTimeout, requestCeiling time.Duration, m *metrics.GatewayMetrics, logger *logging.Logger) *Engine {
	if llm == nil {
		panic("agent: llm client cannot be nil")
	}
	if catalog == nil {
		panic("agent: catalog cannot be nil")
	}
	if contexts == nil {
		panic("agent: context store cannot be nil")
	}
	if dispatcher == nil {
		panic("agent: dispatcher cannot be nil")
	}
	if modelTimeout <= 0 {
		modelTimeout = 30 * time.Second
	}
	if requestCeiling <= 0 {
		requestCeiling = 2 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		llm:            llm,
		catalog:        catalog,
		contexts:       contexts,
		dispatcher:     dispatcher,
		modelID:        modelID,
		modelTimeout:   modelTimeout,
		requestCeiling: requestCeiling,
		metrics:        m,
		logger:         logger,
	}
}

// ProcessMessage runs the loop: invoke the model, execute every tool call it
// requested, feed the results back, repeat until the model answers in text or
// the turn budget is spent. Tool failures never escape the loop; only a
// failure of the model itself returns an error.
func (e *Engine) ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.requestCeiling)
	defer cancel()

	ctx, span := engineTracer.Start(ctx, "agent.process_message")
	defer span.End()
	span.SetAttributes(attribute.String("arcagent.sender", req.Sender))

	wc, err := e.contexts.Get(ctx, req.Sender)
	if err != nil {
		// A broken store degrades to "no pending workflow"; the guardrail
		// still protects confirm/cancel.
		e.logger.Error("failed to load workflow context", "error", err, "sender", req.Sender)
		wc = WorkflowContext{}
	}

	transcript := []ChatMessage{
		{Role: ChatRoleUser, Content: req.Message},
	}
	system := renderSystemPrompt(wc)

	// State-mutating calls repeated verbatim inside one request are collapsed
	// onto their first result so a looping model cannot double-register or
	// double-initiate a payment.
	executed := map[string]ToolResult{}

	var lastText string
	turns := 0
	for turns < maxModelTurns {
		turns++

		resp, err := e.invokeModel(ctx, system, transcript)
		if err != nil {
			e.countModel("error")
			span.RecordError(err)
			return nil, fmt.Errorf("%w: %v", ErrModelInvocation, err)
		}
		e.countModel("ok")

		if resp.Text != "" {
			lastText = resp.Text
		}
		transcript = append(transcript, ChatMessage{
			Role:      ChatRoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			e.observeTurns(turns)
			return e.respond(req, lastText), nil
		}

		for _, call := range resp.ToolCalls {
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			result := e.executeOnce(ctx, req.Sender, call, executed)
			if e.metrics != nil {
				e.metrics.ToolExecutions.WithLabelValues(call.Name, metrics.ToolOutcome(result.Success)).Inc()
			}
			transcript = append(transcript, ChatMessage{
				Role:   ChatRoleTool,
				Result: &result,
			})
		}
	}

	e.observeTurns(turns)
	e.logger.Warn("model turn budget exhausted", "sender", req.Sender, "turns", turns)
	if lastText == "" {
		lastText = exhaustedReply
	}
	return e.respond(req, lastText), nil
}

func (e *Engine) invokeModel(ctx context.Context, system []string, transcript []ChatMessage) (LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	return e.llm.Complete(callCtx, LLMRequest{
		Model:    e.modelID,
		System:   system,
		Messages: transcript,
		Tools:    e.catalog.Specs(),
	})
}

func (e *Engine) executeOnce(ctx context.Context, sender string, call ToolCall, executed map[string]ToolResult) ToolResult {
	key := dedupeKey(call)
	if mutating(call.Name) && key != "" {
		if prior, ok := executed[key]; ok {
			e.logger.Warn("duplicate mutating tool call collapsed", "tool", call.Name, "sender", sender)
			prior.CallID = call.ID
			return prior
		}
	}

	result := e.dispatcher.Execute(ctx, sender, call)

	if mutating(call.Name) && key != "" {
		executed[key] = result
	}
	return result
}

func (e *Engine) respond(req MessageRequest, text string) *Response {
	return &Response{
		Sender:    req.Sender,
		Message:   text,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Engine) countModel(outcome string) {
	if e.metrics != nil {
		e.metrics.ModelInvocations.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) observeTurns(turns int) {
	if e.metrics != nil {
		e.metrics.LoopIterations.Observe(float64(turns))
	}
}

func mutating(name string) bool {
	return name == ToolRegisterUser || name == ToolSendMoney
}

// dedupeKey canonicalizes a call as name plus its arguments serialized with
// sorted keys. Marshalling a map already sorts keys, so identical argument
// sets collide regardless of the order the model emitted them in.
func dedupeKey(call ToolCall) string {
	raw, err := json.Marshal(call.Arguments)
	if err != nil {
		return ""
	}
	return call.Name + ":" + string(raw)
}
