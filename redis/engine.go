// Package redis provides Redis-backed persistence and task queue
// implementations for the turno workflow engine.
package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/turno"
	corep "github.com/petrijr/turno/internal/persistence"
	"github.com/petrijr/turno/pkg/api"

	rpersist "github.com/petrijr/turno/redis/internal/persistence"
	rqueue "github.com/petrijr/turno/redis/internal/taskqueue"
)

// NewRedisEngine returns an Engine that persists instances and history
// in Redis and distributes tasks over a Redis list, so multiple
// processes can share one workflow store.
func NewRedisEngine(client *redis.Client) (api.Engine, error) {
	return NewRedisEngineWithObserver(client, nil)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the
// given Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs api.Observer) (api.Engine, error) {
	store := rpersist.NewRedisStore(client, "turno:")
	return turno.NewEngine(turno.Config{
		Persistence: corep.Persistence{Instances: store, History: store},
		Queue:       rqueue.NewRedisQueue(client, "turno:"),
		Observer:    obs,
	})
}
