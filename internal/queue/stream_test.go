package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *StreamQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewStreamQueue(rdb, "test:mail", "test-group", "consumer-1", 50*time.Millisecond)
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	return q
}

func TestStreamQueueRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, MailJob{To: "a@example.com", ResetLink: "http://localhost/reset?token=x"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected a stream message id")
	}

	messages, err := q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	job := messages[0].Job
	if job.To != "a@example.com" {
		t.Fatalf("unexpected recipient %q", job.To)
	}
	if job.JobID == "" {
		t.Fatal("expected enqueue to assign a job id")
	}
	if job.EnqueuedAt.IsZero() {
		t.Fatal("expected enqueue to stamp the job")
	}

	if err := q.Ack(ctx, messages[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	messages, err = q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read after ack: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty queue after ack, got %d messages", len(messages))
	}
}

func TestStreamQueueEnsureGroupIdempotent(t *testing.T) {
	q := newTestQueue(t)
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("second ensure group: %v", err)
	}
}

func TestStreamQueuePreservesAttempts(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, MailJob{JobID: "retry-1", To: "b@example.com", Attempts: 2}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	messages, err := q.Read(ctx, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Job.JobID != "retry-1" {
		t.Fatalf("expected job id to survive, got %q", messages[0].Job.JobID)
	}
	if messages[0].Job.Attempts != 2 {
		t.Fatalf("expected attempts=2, got %d", messages[0].Job.Attempts)
	}
}
