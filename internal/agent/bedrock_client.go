package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient implements LLMClient over the Bedrock Converse API with
// native tool use.
type BedrockLLMClient struct {
	api bedrockConverseAPI
}

func NewBedrockLLMClient(api bedrockConverseAPI) *BedrockLLMClient {
	if api == nil {
		panic("agent: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return LLMResponse{}, errors.New("agent: bedrock model id is required")
	}

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages, err := bedrockMessages(req.Messages, &systemBlocks)
	if err != nil {
		return LLMResponse{}, err
	}

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Allow callers to omit temperature by passing a negative value.
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		inference = nil
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
		ToolConfig:      bedrockToolConfig(req.Tools),
	})
	if err != nil {
		return LLMResponse{}, err
	}

	resp, err := bedrockExtractOutput(out)
	if err != nil {
		return LLMResponse{}, err
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

// bedrockMessages converts the internal transcript to Converse messages.
// Tool results travel as user-role messages per the Converse contract, and
// consecutive tool results collapse into one user message so the alternating
// role requirement holds.
func bedrockMessages(msgs []ChatMessage, systemBlocks *[]brtypes.SystemContentBlock) ([]brtypes.Message, error) {
	messages := make([]brtypes.Message, 0, len(msgs))
	appendBlocks := func(role brtypes.ConversationRole, blocks ...brtypes.ContentBlock) {
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, brtypes.Message{Role: role, Content: blocks})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case ChatRoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				*systemBlocks = append(*systemBlocks, &brtypes.SystemContentBlockMemberText{Value: msg.Content})
			}
		case ChatRoleUser:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			appendBlocks(brtypes.ConversationRoleUser, &brtypes.ContentBlockMemberText{Value: msg.Content})
		case ChatRoleAssistant:
			blocks := make([]brtypes.ContentBlock, 0, 1+len(msg.ToolCalls))
			if strings.TrimSpace(msg.Content) != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{
						ToolUseId: aws.String(call.ID),
						Name:      aws.String(call.Name),
						Input:     document.NewLazyDocument(call.Arguments),
					},
				})
			}
			if len(blocks) == 0 {
				continue
			}
			appendBlocks(brtypes.ConversationRoleAssistant, blocks...)
		case ChatRoleTool:
			if msg.Result == nil {
				return nil, errors.New("agent: tool message without a result")
			}
			appendBlocks(brtypes.ConversationRoleUser, bedrockToolResultBlock(*msg.Result))
		default:
			return nil, fmt.Errorf("agent: unsupported role %q", msg.Role)
		}
	}
	return messages, nil
}

func bedrockToolResultBlock(result ToolResult) brtypes.ContentBlock {
	status := brtypes.ToolResultStatusSuccess
	payload := map[string]any{}
	if result.Success {
		for k, v := range result.Payload {
			payload[k] = v
		}
		payload["success"] = true
	} else {
		status = brtypes.ToolResultStatusError
		payload["success"] = false
		payload["error"] = result.Error
		if result.Code != "" {
			payload["code"] = result.Code
		}
	}
	return &brtypes.ContentBlockMemberToolResult{
		Value: brtypes.ToolResultBlock{
			ToolUseId: aws.String(result.CallID),
			Content: []brtypes.ToolResultContentBlock{
				&brtypes.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(payload)},
			},
			Status: status,
		},
	}
}

func bedrockToolConfig(tools []ToolSpec) *brtypes.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	out := make([]brtypes.Tool, 0, len(tools))
	for _, spec := range tools {
		out = append(out, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(spec.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(spec.JSONSchema()),
				},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: out}
}

func bedrockExtractOutput(out *bedrockruntime.ConverseOutput) (LLMResponse, error) {
	if out == nil {
		return LLMResponse{}, errors.New("agent: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return LLMResponse{}, errors.New("agent: bedrock response did not include a message output")
	}

	var builder strings.Builder
	var calls []ToolCall
	for _, block := range msgOut.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			builder.WriteString(v.Value)
		case *brtypes.ContentBlockMemberToolUse:
			call := ToolCall{
				ID:   aws.ToString(v.Value.ToolUseId),
				Name: aws.ToString(v.Value.Name),
			}
			if v.Value.Input != nil {
				args := map[string]any{}
				if err := v.Value.Input.UnmarshalSmithyDocument(&args); err != nil {
					return LLMResponse{}, fmt.Errorf("agent: bedrock tool input decode: %w", err)
				}
				call.Arguments = args
			}
			calls = append(calls, call)
		}
	}

	resp := LLMResponse{
		Text:      strings.TrimSpace(builder.String()),
		ToolCalls: calls,
	}
	if out.StopReason != "" {
		resp.StopReason = string(out.StopReason)
	}
	if resp.Text == "" && len(resp.ToolCalls) == 0 {
		return LLMResponse{}, errors.New("agent: bedrock response contained no text or tool use")
	}
	return resp, nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
