package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/arcagent/gateway/internal/observability/metrics"
	"github.com/arcagent/gateway/pkg/logging"
)

const (
	defaultWorkers          = 2
	defaultReceiveWait      = 2  // seconds
	defaultReceiveMax       = 5  // messages
	maxReceiveWaitSeconds   = 20 // SQS limit
	maxReceiveBatchMessages = 10
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption configures the pool.
type WorkerOption func(*workerConfig)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) WorkerOption {
	return func(cfg *workerConfig) {
		if workers > 0 {
			cfg.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait time for Receive calls.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize overrides how many messages each poll should return.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchMessages {
			size = maxReceiveBatchMessages
		}
		cfg.receiveBatchSize = size
	}
}

// WorkerPool drains the message queue: each job runs through the engine and
// the answer goes out through the responder. A model failure is the one error
// class that escapes the engine; the pool absorbs it here with a generic
// best-effort reply, so the user-facing channel never sees an exception.
type WorkerPool struct {
	service     Service
	queue       queueClient
	responder   *Responder
	transcripts *TranscriptStore
	metrics     *metrics.GatewayMetrics
	logger      *logging.Logger

	cfg workerConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool starts the polling goroutines. transcripts and metrics may be
// nil.
func NewWorkerPool(service Service, queue queueClient, responder *Responder, transcripts *TranscriptStore, m *metrics.GatewayMetrics, logger *logging.Logger, opts ...WorkerOption) *WorkerPool {
	if service == nil {
		panic("agent: service cannot be nil")
	}
	if queue == nil {
		panic("agent: queue cannot be nil")
	}
	if responder == nil {
		panic("agent: responder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkers,
		receiveWaitSecs:  defaultReceiveWait,
		receiveBatchSize: defaultReceiveMax,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		service:     service,
		queue:       queue,
		responder:   responder,
		transcripts: transcripts,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < cfg.workers; i++ {
		p.wg.Add(1)
		go p.run(i + 1)
	}

	return p
}

// Shutdown stops the polling goroutines and waits for in-flight jobs.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (p *WorkerPool) run(workerID int) {
	defer p.wg.Done()
	p.logger.Debug("agent worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("agent worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := p.queue.Receive(p.ctx, p.cfg.receiveBatchSize, p.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error("failed to receive message jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			p.handle(msg)
		}
	}
}

func (p *WorkerPool) handle(msg queueMessage) {
	defer p.deleteMessage(msg.ReceiptHandle)

	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		p.logger.Error("failed to decode message job", "error", err)
		return
	}
	if payload.Kind != jobTypeMessage {
		p.logger.Error("unknown job type", "kind", string(payload.Kind), "job_id", payload.ID)
		return
	}

	req := payload.Message
	p.transcripts.Record(p.ctx, req.Sender, DirectionInbound, req.Message)

	started := time.Now()
	resp, err := p.service.ProcessMessage(p.ctx, req)

	outcome := "ok"
	reply := ""
	switch {
	case err != nil:
		outcome = "error"
		p.logger.Error("message processing failed", "error", err, "sender", req.Sender, "job_id", payload.ID)
		reply = FallbackReply
	case resp != nil:
		reply = resp.Message
	}
	p.observeRequest(outcome, time.Since(started))

	if reply == "" {
		return
	}
	p.transcripts.Record(p.ctx, req.Sender, DirectionOutbound, reply)

	deliverCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	p.responder.Deliver(deliverCtx, req.Sender, reply)
}

func (p *WorkerPool) deleteMessage(receiptHandle string) {
	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.queue.Delete(deleteCtx, receiptHandle); err != nil {
		p.logger.Error("failed to delete message job", "error", err)
	}
}

func (p *WorkerPool) observeRequest(outcome string, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.RequestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}
