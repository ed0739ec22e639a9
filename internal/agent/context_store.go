package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Workflow type tags assigned by the backend.
const (
	WorkflowRegistration = "registration"
	WorkflowPayment      = "payment"
)

// WorkflowContext is the per-sender record of the most recent in-flight
// workflow. The zero value means "no active workflow".
type WorkflowContext struct {
	LastWorkflowID   string `json:"last_workflow_id,omitempty"`
	LastWorkflowType string `json:"last_workflow_type,omitempty"`
}

// Empty reports whether no workflow is being tracked.
func (c WorkflowContext) Empty() bool {
	return c.LastWorkflowID == "" && c.LastWorkflowType == ""
}

// ContextStore persists workflow context keyed by sender identity. Get must
// return an empty context for unknown senders. Implementations must keep a
// single sender's read-modify-write safe under concurrent requests.
type ContextStore interface {
	Get(ctx context.Context, sender string) (WorkflowContext, error)
	Set(ctx context.Context, sender string, wc WorkflowContext) error
}

const contextTTL = 24 * time.Hour

// RedisContextStore keeps workflow context in Redis with a TTL, so stale
// workflow markers age out on their own.
type RedisContextStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisContextStore wraps the provided Redis client.
func NewRedisContextStore(client *redis.Client, tracer trace.Tracer) *RedisContextStore {
	if client == nil {
		panic("agent: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("arcagent.internal.agent.context")
	}
	return &RedisContextStore{redis: client, tracer: tracer}
}

var _ ContextStore = (*RedisContextStore)(nil)

func (s *RedisContextStore) Get(ctx context.Context, sender string) (WorkflowContext, error) {
	ctx, span := s.tracer.Start(ctx, "agent.context.get")
	defer span.End()

	data, err := s.redis.Get(ctx, contextKey(sender)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return WorkflowContext{}, nil
		}
		span.RecordError(err)
		return WorkflowContext{}, fmt.Errorf("agent: failed to load context: %w", err)
	}

	var wc WorkflowContext
	if err := json.Unmarshal(data, &wc); err != nil {
		span.RecordError(err)
		return WorkflowContext{}, fmt.Errorf("agent: failed to decode context: %w", err)
	}
	return wc, nil
}

func (s *RedisContextStore) Set(ctx context.Context, sender string, wc WorkflowContext) error {
	ctx, span := s.tracer.Start(ctx, "agent.context.set")
	defer span.End()

	if wc.Empty() {
		if err := s.redis.Del(ctx, contextKey(sender)).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("agent: failed to clear context: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(wc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("agent: failed to marshal context: %w", err)
	}
	if err := s.redis.Set(ctx, contextKey(sender), data, contextTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("agent: failed to persist context: %w", err)
	}
	return nil
}

func contextKey(sender string) string {
	return fmt.Sprintf("agent:context:%s", sender)
}

// MemoryContextStore is a process-local ContextStore for tests and
// single-instance development runs.
type MemoryContextStore struct {
	mu       sync.Mutex
	contexts map[string]WorkflowContext
}

// NewMemoryContextStore returns an empty in-memory store.
func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{contexts: make(map[string]WorkflowContext)}
}

var _ ContextStore = (*MemoryContextStore)(nil)

func (s *MemoryContextStore) Get(_ context.Context, sender string) (WorkflowContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contexts[sender], nil
}

func (s *MemoryContextStore) Set(_ context.Context, sender string, wc WorkflowContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wc.Empty() {
		delete(s.contexts, sender)
		return nil
	}
	s.contexts[sender] = wc
	return nil
}
