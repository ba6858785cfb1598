package persistence

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	corep "github.com/petrijr/turno/internal/persistence"
	"github.com/petrijr/turno/pkg/api"
)

func testStore(t *testing.T) *RedisStore {
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

	return NewRedisStore(client, "turno-test-"+uuid.NewString()+":")
}

func TestRedisInstanceLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	inst := &api.WorkflowInstance{
		ID:        "i1",
		Type:      "approval-flow",
		Status:    api.StatusRunning,
		CreatedAt: time.Now(),
	}
	if err := store.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	if err := store.CreateInstance(ctx, inst); !errors.Is(err, corep.ErrDuplicateInstance) {
		t.Fatalf("duplicate create: got %v, want ErrDuplicateInstance", err)
	}

	got, err := store.GetInstance(ctx, "i1")
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	if got.Type != "approval-flow" || got.Status != api.StatusRunning {
		t.Fatalf("unexpected instance: %+v", got)
	}

	got.Status = api.StatusCompleted
	if err := store.UpdateInstance(ctx, got); err != nil {
		t.Fatalf("UpdateInstance: %v", err)
	}

	list, err := store.ListInstances(ctx, api.InstanceListOptions{Status: api.StatusCompleted})
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(list) != 1 || list[0].ID != "i1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := store.DeleteInstance(ctx, "i1"); err != nil {
		t.Fatalf("DeleteInstance: %v", err)
	}
	if _, err := store.GetInstance(ctx, "i1"); !errors.Is(err, corep.ErrInstanceNotFound) {
		t.Fatalf("get after delete: got %v, want ErrInstanceNotFound", err)
	}
}

func TestRedisAppendEventsOptimisticConcurrency(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	inst := &api.WorkflowInstance{ID: "i2", Type: "t", Status: api.StatusRunning}
	if err := store.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	ev := api.HistoryEvent{Sequence: 1, InstanceID: "i2", Kind: api.EventOrchestratorStarted, Timestamp: time.Now()}
	if err := store.AppendEvents(ctx, "i2", 0, []api.HistoryEvent{ev}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	// Same expected version again must conflict.
	if err := store.AppendEvents(ctx, "i2", 0, []api.HistoryEvent{ev}); !errors.Is(err, corep.ErrConflict) {
		t.Fatalf("stale append: got %v, want ErrConflict", err)
	}

	// Unknown instance is not a silent no-op.
	if err := store.AppendEvents(ctx, "nope", 0, []api.HistoryEvent{ev}); !errors.Is(err, corep.ErrInstanceNotFound) {
		t.Fatalf("unknown instance append: got %v, want ErrInstanceNotFound", err)
	}

	history, err := store.ReadHistory(ctx, "i2")
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(history) != 1 || history[0].Kind != api.EventOrchestratorStarted {
		t.Fatalf("unexpected history: %+v", history)
	}
}
