package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLMClient implements LLMClient using Google's Gemini API with
// function calling.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("agent: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("agent: failed to create gemini client: %w", err)
	}

	return &GeminiLLMClient{
		client:  client,
		modelID: modelID,
	}, nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if len(req.Messages) == 0 {
		return LLMResponse{}, errors.New("agent: gemini requires at least one message")
	}

	model := c.client.GenerativeModel(c.modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if len(req.System) > 0 {
		systemText := strings.Join(req.System, "\n\n")
		if strings.TrimSpace(systemText) != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
		}
	}
	model.Tools = geminiTools(req.Tools)

	// The trailing run of tool results is the outgoing turn; everything
	// before it is history. Without tool results the last message itself is
	// the outgoing turn.
	split := len(req.Messages)
	for split > 0 && req.Messages[split-1].Role == ChatRoleTool {
		split--
	}

	var sendParts []genai.Part
	if split < len(req.Messages) {
		for _, msg := range req.Messages[split:] {
			if msg.Result == nil {
				return LLMResponse{}, errors.New("agent: tool message without a result")
			}
			sendParts = append(sendParts, geminiFunctionResponse(*msg.Result))
		}
	} else {
		split--
		last := req.Messages[split]
		if last.Role != ChatRoleUser {
			return LLMResponse{}, fmt.Errorf("agent: gemini expects a user turn last, got %q", last.Role)
		}
		sendParts = []genai.Part{genai.Text(last.Content)}
	}

	cs := model.StartChat()
	history, err := geminiHistory(req.Messages[:split])
	if err != nil {
		return LLMResponse{}, err
	}
	cs.History = history

	resp, err := cs.SendMessage(ctx, sendParts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("agent: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("agent: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("agent: gemini returned empty content")
	}

	var responseText strings.Builder
	var calls []ToolCall
	for _, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseText.WriteString(string(v))
		case genai.FunctionCall:
			// Gemini carries no call id; the loop assigns one.
			calls = append(calls, ToolCall{Name: v.Name, Arguments: v.Args})
		}
	}

	result := LLMResponse{
		Text:       strings.TrimSpace(responseText.String()),
		ToolCalls:  calls,
		StopReason: fmt.Sprint(candidate.FinishReason),
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

func geminiHistory(msgs []ChatMessage) ([]*genai.Content, error) {
	history := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case ChatRoleSystem:
			// Folded into SystemInstruction by the caller.
		case ChatRoleUser:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			history = append(history, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		case ChatRoleAssistant:
			parts := make([]genai.Part, 0, 1+len(msg.ToolCalls))
			if strings.TrimSpace(msg.Content) != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Arguments})
			}
			if len(parts) == 0 {
				continue
			}
			history = append(history, &genai.Content{Role: "model", Parts: parts})
		case ChatRoleTool:
			if msg.Result == nil {
				return nil, errors.New("agent: tool message without a result")
			}
			history = append(history, &genai.Content{
				Role:  "function",
				Parts: []genai.Part{geminiFunctionResponse(*msg.Result)},
			})
		default:
			return nil, fmt.Errorf("agent: unsupported role %q", msg.Role)
		}
	}
	return history, nil
}

func geminiFunctionResponse(result ToolResult) genai.FunctionResponse {
	response := map[string]any{"success": result.Success}
	if result.Success {
		for k, v := range result.Payload {
			response[k] = v
		}
	} else {
		response["error"] = result.Error
		if result.Code != "" {
			response["code"] = result.Code
		}
	}
	return genai.FunctionResponse{Name: result.Name, Response: response}
}

func geminiTools(tools []ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, spec := range tools {
		properties := map[string]*genai.Schema{}
		var required []string
		for _, f := range spec.Fields {
			fieldType := genai.TypeString
			if f.Type == FieldNumber {
				fieldType = genai.TypeNumber
			}
			properties[f.Name] = &genai.Schema{
				Type:        fieldType,
				Description: f.Description,
			}
			if f.Required {
				required = append(required, f.Name)
			}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
