package agent

import (
	"context"
	"time"
)

// Service describes how the conversational engine behaves: one inbound
// message in, one final natural-language answer out.
type Service interface {
	ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error)
}

// MessageRequest is a single inbound message from a sender.
type MessageRequest struct {
	Sender     string            `json:"sender"`
	Message    string            `json:"message"`
	MessageSID string            `json:"message_sid,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Response is the final answer produced for one request.
type Response struct {
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
