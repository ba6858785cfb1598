package taskqueue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	coreq "github.com/petrijr/turno/internal/taskqueue"
)

func testQueue(t *testing.T) *RedisQueue {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewRedisQueue(client, "turno-test-"+uuid.NewString()+":")
}

func TestRedisQueueRoundTrip(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	task := coreq.Task{
		ID:         "t1",
		Type:       coreq.TaskTypeActivity,
		InstanceID: "i1",
		TaskID:     3,
		Activity:   "poll_badge_status",
		Args:       []byte(`"BADGE-1"`),
	}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.Type != coreq.TaskTypeActivity || got.InstanceID != "i1" || got.TaskID != 3 || got.Activity != "poll_badge_status" {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestRedisQueueNotBefore(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	delayed := coreq.Task{ID: "later", Type: coreq.TaskTypeResume, InstanceID: "i1",
		NotBefore: time.Now().Add(50 * time.Millisecond)}
	if err := q.Enqueue(ctx, delayed); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	start := time.Now()
	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.ID != "later" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatalf("task delivered before NotBefore")
	}
}

func TestRedisQueueDequeueCancel(t *testing.T) {
	q := testQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatal("Dequeue on empty queue returned without error after cancel")
	}
}
