package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderSystemPromptNoWorkflow(t *testing.T) {
	blocks := renderSystemPrompt(WorkflowContext{})
	require.Len(t, blocks, 2)
	require.Contains(t, blocks[1], "no pending workflow")
}

func TestRenderSystemPromptPendingPayment(t *testing.T) {
	blocks := renderSystemPrompt(WorkflowContext{LastWorkflowID: "pay-3", LastWorkflowType: WorkflowPayment})
	require.Contains(t, blocks[1], "pay-3")
	require.Contains(t, blocks[1], "pending payment")
}

func TestRenderSystemPromptRegistration(t *testing.T) {
	blocks := renderSystemPrompt(WorkflowContext{LastWorkflowID: "reg-5", LastWorkflowType: WorkflowRegistration})
	require.Contains(t, blocks[1], "reg-5")
	require.Contains(t, blocks[1], "verifyCode")
}
