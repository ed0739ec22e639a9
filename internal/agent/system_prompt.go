package agent

import (
	"fmt"
	"strings"
)

const baseInstructions = `You are ArcAgent, a WhatsApp assistant for USDC payments. You help users register, check their balance, send money, review transactions, and confirm or cancel pending transfers.

Rules:
- Use the provided tools for every account operation. Never invent balances, workflow ids, or transaction data.
- New or unregistered users should be registered with registerUser before anything else.
- When the user replies with a bare verification code (typically 6 digits), submit it with verifyCode against their pending registration workflow.
- "CONFIRM" or "CANCEL" (in any casing) refers to the user's pending payment. Use confirmAction or cancelAction.
- If a tool fails, explain the problem to the user in plain language and suggest what to do next.
- Keep replies short and friendly. This is a text-message channel: no markdown, no bullet lists.`

// renderSystemPrompt builds the system message for one request, folding the
// sender's workflow context in so the model does not confirm or cancel
// against nothing.
func renderSystemPrompt(wc WorkflowContext) []string {
	var status string
	switch {
	case wc.LastWorkflowType == WorkflowPayment && wc.LastWorkflowID != "":
		status = fmt.Sprintf("The user has a pending payment workflow (id %q) awaiting their confirmation. CONFIRM or CANCEL applies to it.", wc.LastWorkflowID)
	case wc.LastWorkflowType == WorkflowRegistration && wc.LastWorkflowID != "":
		status = fmt.Sprintf("The user has a registration in progress (workflow id %q). A bare verification code should be submitted with verifyCode for this workflow.", wc.LastWorkflowID)
	default:
		status = "The user has no pending workflow. There is nothing to confirm or cancel; say so instead of calling confirmAction or cancelAction."
	}
	return []string{
		baseInstructions,
		strings.TrimSpace("Current state: " + status),
	}
}
