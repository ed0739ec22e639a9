package agent

import (
	"context"
	"fmt"

	"github.com/arcagent/gateway/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing. The
// webhook handler acks the channel immediately and the worker pool picks the
// job up from the queue.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("agent: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueMessage publishes one inbound message job.
func (p *Publisher) EnqueueMessage(ctx context.Context, req MessageRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(queuePayload{
		Kind:    jobTypeMessage,
		Message: req,
	})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("agent: failed to enqueue message: %w", err)
	}

	p.logger.Debug("message job enqueued", "job_id", payload.ID, "sender", req.Sender)
	return nil
}
