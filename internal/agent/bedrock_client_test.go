package agent

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type fakeConverseAPI struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeConverseAPI) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	return f.output, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
	}
}

func TestBedrockClientPassesToolConfiguration(t *testing.T) {
	api := &fakeConverseAPI{output: textOutput("hello")}
	client := NewBedrockLLMClient(api)

	catalog := NewCatalog()
	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:       "anthropic.claude-3-haiku",
		System:      []string{"be brief"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
		Tools:       catalog.Specs(),
		Temperature: -1,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("unexpected text %q", resp.Text)
	}

	if api.lastInput.ToolConfig == nil {
		t.Fatal("expected tool configuration on the request")
	}
	if got := len(api.lastInput.ToolConfig.Tools); got != 7 {
		t.Fatalf("expected 7 tools, got %d", got)
	}
	spec, ok := api.lastInput.ToolConfig.Tools[0].(*brtypes.ToolMemberToolSpec)
	if !ok {
		t.Fatalf("unexpected tool type %T", api.lastInput.ToolConfig.Tools[0])
	}
	if aws.ToString(spec.Value.Name) != ToolRegisterUser {
		t.Fatalf("expected first tool %q, got %q", ToolRegisterUser, aws.ToString(spec.Value.Name))
	}
}

func TestBedrockClientDecodesToolUse(t *testing.T) {
	api := &fakeConverseAPI{
		output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role: brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberToolUse{
							Value: brtypes.ToolUseBlock{
								ToolUseId: aws.String("call-1"),
								Name:      aws.String(ToolSendMoney),
								Input: document.NewLazyDocument(map[string]any{
									"amount":    25,
									"recipient": "bob",
								}),
							},
						},
					},
				},
			},
			StopReason: brtypes.StopReasonToolUse,
		},
	}
	client := NewBedrockLLMClient(api)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:       "anthropic.claude-3-haiku",
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "send 25 to bob"}},
		Temperature: -1,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "call-1" || call.Name != ToolSendMoney {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.Arguments["recipient"] != "bob" {
		t.Fatalf("unexpected arguments %v", call.Arguments)
	}
	if resp.StopReason != string(brtypes.StopReasonToolUse) {
		t.Fatalf("unexpected stop reason %q", resp.StopReason)
	}
}

func TestBedrockClientSendsToolResultsAsUserTurn(t *testing.T) {
	api := &fakeConverseAPI{output: textOutput("done")}
	client := NewBedrockLLMClient(api)

	_, err := client.Complete(context.Background(), LLMRequest{
		Model: "anthropic.claude-3-haiku",
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "balance?"},
			{Role: ChatRoleAssistant, ToolCalls: []ToolCall{{ID: "call-2", Name: ToolCheckBalance, Arguments: map[string]any{}}}},
			{Role: ChatRoleTool, Result: &ToolResult{CallID: "call-2", Name: ToolCheckBalance, Success: true, Payload: map[string]any{"balance": 10.0}}},
		},
		Temperature: -1,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	msgs := api.lastInput.Messages
	if len(msgs) != 3 {
		t.Fatalf("expected 3 converse messages, got %d", len(msgs))
	}
	if msgs[2].Role != brtypes.ConversationRoleUser {
		t.Fatalf("tool results must travel as user role, got %v", msgs[2].Role)
	}
	result, ok := msgs[2].Content[0].(*brtypes.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("expected tool result block, got %T", msgs[2].Content[0])
	}
	if aws.ToString(result.Value.ToolUseId) != "call-2" {
		t.Fatalf("unexpected tool use id %q", aws.ToString(result.Value.ToolUseId))
	}
	if result.Value.Status != brtypes.ToolResultStatusSuccess {
		t.Fatalf("unexpected status %v", result.Value.Status)
	}
}

func TestBedrockClientRequiresModelID(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverseAPI{output: textOutput("x")})
	_, err := client.Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for missing model id")
	}
}
