package agent

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueSendReceiveDelete(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	if err := q.Send(ctx, `{"n":1}`); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := q.Send(ctx, `{"n":2}`); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if q.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", q.Depth())
	}

	msgs, err := q.Receive(ctx, 10, 1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Body != `{"n":1}` {
		t.Fatalf("expected FIFO order, got %q first", msgs[0].Body)
	}
	if err := q.Delete(ctx, msgs[0].ReceiptHandle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)

	start := time.Now()
	msgs, err := q.Receive(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msgs != nil {
		t.Fatalf("expected no messages, got %v", msgs)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected the wait to run its course, returned after %v", elapsed)
	}
}

func TestMemoryQueueReceiveHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx, 1, 0)
	if err == nil {
		t.Fatal("expected context error")
	}
}
