package taskqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	coreq "github.com/petrijr/turno/internal/taskqueue"
)

// RedisQueue implements the Queue interface using Redis.
//
// It uses a single Redis list with key:
//
//	<prefix>tasks
//
// Values are JSON-encoded Task structs. Tasks with a future NotBefore
// are pushed back and retried after a short delay.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "turno:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "turno:"
	}
	return &RedisQueue{client: client, key: prefix + "tasks"}
}

var _ coreq.Queue = (*RedisQueue)(nil)

// Enqueue pushes a task onto the Redis list (LPUSH).
func (q *RedisQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	data, err := coreq.EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Dequeue blocks on BRPOP until an eligible task is available or ctx is
// cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	for {
		res, err := q.client.BRPop(ctx, 0, q.key).Result()
		if err != nil {
			return nil, err
		}
		if len(res) != 2 {
			slog.Warn("redis queue: unexpected BRPOP result", slog.Int("len", len(res)))
			continue
		}

		task, err := coreq.DecodeTask([]byte(res[1]))
		if err != nil {
			return nil, err
		}

		if !task.NotBefore.IsZero() && time.Now().Before(task.NotBefore) {
			if err := q.client.LPush(ctx, q.key, []byte(res[1])).Err(); err != nil {
				return nil, err
			}
			select {
			case <-time.After(5 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		return task, nil
	}
}

// Len returns the approximate number of tasks queued (LLEN).
func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		slog.Warn("redis queue: LLEN failed", slog.String("error", err.Error()))
		return 0
	}
	return int(n)
}
