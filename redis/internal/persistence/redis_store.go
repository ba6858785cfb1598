package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	corep "github.com/petrijr/turno/internal/persistence"
	"github.com/petrijr/turno/pkg/api"
)

// RedisStore implements InstanceStore and HistoryStore on Redis.
// It uses a simple key structure:
//
//	<prefix>inst:<id>            => JSON-encoded instance
//	<prefix>hist:<id>            => LIST of JSON-encoded history events
//	<prefix>idx:all              => SET of all instance IDs
//
// The optimistic-concurrency append runs as a Lua script so the version
// check and the pushes are atomic.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ corep.InstanceStore = (*RedisStore)(nil)
var _ corep.HistoryStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "turno:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "turno:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) keyInstance(id string) string { return r.prefix + "inst:" + id }
func (r *RedisStore) keyHistory(id string) string  { return r.prefix + "hist:" + id }
func (r *RedisStore) keyAll() string               { return r.prefix + "idx:all" }

func (r *RedisStore) CreateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.keyInstance(inst.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return corep.ErrDuplicateInstance
	}
	return r.client.SAdd(ctx, r.keyAll(), inst.ID).Err()
}

func (r *RedisStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}

	ok, err := r.client.SetXX(ctx, r.keyInstance(inst.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return corep.ErrInstanceNotFound
	}
	return nil
}

func (r *RedisStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	data, err := r.client.Get(ctx, r.keyInstance(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, corep.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}

	var inst api.WorkflowInstance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("decode instance %s: %w", id, err)
	}
	return &inst, nil
}

func (r *RedisStore) ListInstances(ctx context.Context, filter api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	ids, err := r.client.SMembers(ctx, r.keyAll()).Result()
	if err != nil {
		return nil, err
	}

	var out []*api.WorkflowInstance
	for _, id := range ids {
		inst, err := r.GetInstance(ctx, id)
		if errors.Is(err, corep.ErrInstanceNotFound) {
			// Deleted between SMEMBERS and GET.
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Type != "" && inst.Type != filter.Type {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (r *RedisStore) DeleteInstance(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.keyInstance(id))
	pipe.SRem(ctx, r.keyAll(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// appendScript atomically checks instance existence and stream version,
// then appends the events. Returns -2 when the instance is unknown and
// -1 on a version conflict.
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -2
end
local len = redis.call('LLEN', KEYS[2])
if len ~= tonumber(ARGV[1]) then
	return -1
end
for i = 2, #ARGV do
	redis.call('RPUSH', KEYS[2], ARGV[i])
end
return len + #ARGV - 1
`)

func (r *RedisStore) AppendEvents(ctx context.Context, instanceID string, expectedVersion int64, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]any, 0, len(events)+1)
	args = append(args, expectedVersion)
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		args = append(args, data)
	}

	res, err := appendScript.Run(ctx, r.client,
		[]string{r.keyInstance(instanceID), r.keyHistory(instanceID)}, args...).Int64()
	if err != nil {
		return err
	}
	switch res {
	case -2:
		return corep.ErrInstanceNotFound
	case -1:
		return corep.ErrConflict
	}
	return nil
}

func (r *RedisStore) ReadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	items, err := r.client.LRange(ctx, r.keyHistory(instanceID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]api.HistoryEvent, 0, len(items))
	for _, item := range items {
		var ev api.HistoryEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("decode history event for %s: %w", instanceID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *RedisStore) DeleteHistory(ctx context.Context, instanceID string) error {
	return r.client.Del(ctx, r.keyHistory(instanceID)).Err()
}
