package redis

import (
	"github.com/redis/go-redis/v9"

	coreq "github.com/petrijr/turno/internal/taskqueue"
	rqueue "github.com/petrijr/turno/redis/internal/taskqueue"
)

// NewRedisQueue returns a task queue backed by a Redis list, for wiring
// into a custom engine configuration.
func NewRedisQueue(client *redis.Client, prefix string) coreq.Queue {
	return rqueue.NewRedisQueue(client, prefix)
}
