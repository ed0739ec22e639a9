// Package backend is the typed client for the ArcAgent financial backend.
// The gateway consumes the backend purely through this operation contract;
// it never interprets workflow ids beyond threading them through.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arcagent/gateway/pkg/logging"
)

var tracer = otel.Tracer("arcagent.internal.backend")

// Client calls the backend's HTTP API with API-key authentication.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient builds a backend client with sane defaults.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// WorkflowResult is the common success envelope for workflow-starting and
// workflow-signalling operations.
type WorkflowResult struct {
	Success    bool    `json:"success"`
	WorkflowID string  `json:"workflow_id,omitempty"`
	Message    string  `json:"message,omitempty"`
	Error      string  `json:"error,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	Recipient  string  `json:"recipient,omitempty"`
}

// BalanceResult is the payload of a balance lookup.
type BalanceResult struct {
	Success       bool    `json:"success"`
	Balance       float64 `json:"balance"`
	WalletAddress string  `json:"wallet_address,omitempty"`
	Message       string  `json:"message,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Transaction is a single history entry. Fields mirror the backend response
// and pass through to the model untouched.
type Transaction struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Recipient   string  `json:"recipient,omitempty"`
	Status      string  `json:"status"`
	TxHash      string  `json:"tx_hash,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	ConfirmedAt string  `json:"confirmed_at,omitempty"`
}

// TransactionsResult is the payload of a history lookup.
type TransactionsResult struct {
	Success      bool          `json:"success"`
	Transactions []Transaction `json:"transactions"`
	Count        int           `json:"count,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// RegisterUser starts a registration workflow for the sender.
func (c *Client) RegisterUser(ctx context.Context, phone string) (*WorkflowResult, error) {
	var out WorkflowResult
	err := c.post(ctx, "/api/register", map[string]any{
		"phone_number": phone,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCode submits a verification code to a registration workflow.
func (c *Client) VerifyCode(ctx context.Context, phone, workflowID, code string) (*WorkflowResult, error) {
	var out WorkflowResult
	err := c.post(ctx, "/api/workflow/verify-code", map[string]any{
		"phone_number": phone,
		"workflow_id":  workflowID,
		"code":         code,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMoney starts a payment workflow. The returned workflow id must be
// confirmed or cancelled by the user before funds move.
func (c *Client) SendMoney(ctx context.Context, phone string, amount float64, recipient string) (*WorkflowResult, error) {
	var out WorkflowResult
	err := c.post(ctx, "/api/payment/send", map[string]any{
		"phone_number": phone,
		"amount":       amount,
		"recipient":    recipient,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckBalance looks up the sender's wallet balance.
func (c *Client) CheckBalance(ctx context.Context, phone string) (*BalanceResult, error) {
	var out BalanceResult
	err := c.get(ctx, "/api/balance/"+url.PathEscape(phone), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionHistory fetches the sender's most recent transactions.
func (c *Client) GetTransactionHistory(ctx context.Context, phone string, limit int) (*TransactionsResult, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	var out TransactionsResult
	err := c.get(ctx, "/api/transactions/"+url.PathEscape(phone), query, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmAction signals confirmation to a pending workflow.
func (c *Client) ConfirmAction(ctx context.Context, phone, workflowID string) (*WorkflowResult, error) {
	var out WorkflowResult
	err := c.post(ctx, "/api/workflow/confirm", map[string]any{
		"phone_number": phone,
		"workflow_id":  workflowID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelAction signals cancellation to a pending workflow.
func (c *Client) CancelAction(ctx context.Context, phone, workflowID string) (*WorkflowResult, error) {
	var out WorkflowResult
	err := c.post(ctx, "/api/workflow/cancel", map[string]any{
		"phone_number": phone,
		"workflow_id":  workflowID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage delivers an outbound message to the user through the backend's
// messaging channel.
func (c *Client) SendMessage(ctx context.Context, to, message string) error {
	var out WorkflowResult
	if err := c.post(ctx, "/api/send-message", map[string]any{
		"to":      to,
		"message": message,
	}, &out); err != nil {
		return err
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "send-message returned success=false"
		}
		return fmt.Errorf("backend: %s", reason)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("backend: failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	ctx, span := tracer.Start(ctx, "backend.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("arcagent.backend.method", method),
		attribute.String("arcagent.backend.path", path),
	)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("backend: failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("backend: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("backend: %s %s returned status %d: %s", method, path, resp.StatusCode, truncate(raw, 256))
		span.RecordError(err)
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("backend: failed to decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Healthy reports whether the backend's health probe answers.
func (c *Client) Healthy(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return err
	}
	if out.Status == "" {
		return errors.New("backend: health probe returned no status")
	}
	return nil
}
