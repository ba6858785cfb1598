package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/turno/pkg/api"
)

type storeFactory struct {
	name string
	make func(t *testing.T) (InstanceStore, HistoryStore)
}

var storeFactories = []storeFactory{
	{
		name: "memory",
		make: func(t *testing.T) (InstanceStore, HistoryStore) {
			s := NewInMemoryStore()
			return s, s
		},
	},
	{
		name: "sqlite",
		make: func(t *testing.T) (InstanceStore, HistoryStore) {
			db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "store_test.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			s, err := NewSQLiteStore(db)
			if err != nil {
				t.Fatalf("sqlite store: %v", err)
			}
			return s, s
		},
	},
}

func newInstance(id, typ string, status api.Status) *api.WorkflowInstance {
	now := time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)
	return &api.WorkflowInstance{
		ID:            id,
		Type:          typ,
		Status:        status,
		Input:         json.RawMessage(`{"k":"v"}`),
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

func TestInstanceLifecycle(t *testing.T) {
	for _, sf := range storeFactories {
		t.Run(sf.name, func(t *testing.T) {
			instances, _ := sf.make(t)
			ctx := context.Background()

			inst := newInstance("wf-1", "approval-flow", api.StatusRunning)
			if err := instances.CreateInstance(ctx, inst); err != nil {
				t.Fatalf("CreateInstance: %v", err)
			}

			err := instances.CreateInstance(ctx, newInstance("wf-1", "approval-flow", api.StatusRunning))
			if !errors.Is(err, ErrDuplicateInstance) {
				t.Fatalf("duplicate create: got %v, want ErrDuplicateInstance", err)
			}

			got, err := instances.GetInstance(ctx, "wf-1")
			if err != nil {
				t.Fatalf("GetInstance: %v", err)
			}
			if got.Type != "approval-flow" || got.Status != api.StatusRunning {
				t.Fatalf("round trip mismatch: %+v", got)
			}
			if string(got.Input) != `{"k":"v"}` {
				t.Fatalf("input mismatch: %s", got.Input)
			}

			if _, err := instances.GetInstance(ctx, "missing"); !errors.Is(err, ErrInstanceNotFound) {
				t.Fatalf("missing get: got %v, want ErrInstanceNotFound", err)
			}

			inst.Status = api.StatusCompleted
			inst.Result = json.RawMessage(`"done"`)
			inst.LastSequence = 4
			if err := instances.UpdateInstance(ctx, inst); err != nil {
				t.Fatalf("UpdateInstance: %v", err)
			}
			got, err = instances.GetInstance(ctx, "wf-1")
			if err != nil {
				t.Fatalf("GetInstance after update: %v", err)
			}
			if got.Status != api.StatusCompleted || got.LastSequence != 4 || string(got.Result) != `"done"` {
				t.Fatalf("update not persisted: %+v", got)
			}

			if err := instances.DeleteInstance(ctx, "wf-1"); err != nil {
				t.Fatalf("DeleteInstance: %v", err)
			}
			if _, err := instances.GetInstance(ctx, "wf-1"); !errors.Is(err, ErrInstanceNotFound) {
				t.Fatalf("get after delete: got %v, want ErrInstanceNotFound", err)
			}
			// Deleting again is a no-op.
			if err := instances.DeleteInstance(ctx, "wf-1"); err != nil {
				t.Fatalf("second DeleteInstance: %v", err)
			}
		})
	}
}

func TestListInstancesFilters(t *testing.T) {
	for _, sf := range storeFactories {
		t.Run(sf.name, func(t *testing.T) {
			instances, _ := sf.make(t)
			ctx := context.Background()

			seed := []*api.WorkflowInstance{
				newInstance("a", "approval-flow", api.StatusRunning),
				newInstance("b", "approval-flow", api.StatusCompleted),
				newInstance("c", "badge-provision", api.StatusRunning),
			}
			for _, inst := range seed {
				if err := instances.CreateInstance(ctx, inst); err != nil {
					t.Fatalf("seed %s: %v", inst.ID, err)
				}
			}

			cases := []struct {
				name string
				opts api.InstanceListOptions
				want map[string]bool
			}{
				{"all", api.InstanceListOptions{}, map[string]bool{"a": true, "b": true, "c": true}},
				{"by type", api.InstanceListOptions{Type: "approval-flow"}, map[string]bool{"a": true, "b": true}},
				{"by status", api.InstanceListOptions{Status: api.StatusRunning}, map[string]bool{"a": true, "c": true}},
				{"type and status", api.InstanceListOptions{Type: "approval-flow", Status: api.StatusRunning}, map[string]bool{"a": true}},
				{"no match", api.InstanceListOptions{Type: "nope"}, map[string]bool{}},
			}
			for _, tc := range cases {
				got, err := instances.ListInstances(ctx, tc.opts)
				if err != nil {
					t.Fatalf("%s: ListInstances: %v", tc.name, err)
				}
				if len(got) != len(tc.want) {
					t.Fatalf("%s: got %d instances, want %d", tc.name, len(got), len(tc.want))
				}
				for _, inst := range got {
					if !tc.want[inst.ID] {
						t.Fatalf("%s: unexpected instance %s", tc.name, inst.ID)
					}
				}
			}
		})
	}
}

func TestAppendEventsOptimisticConcurrency(t *testing.T) {
	for _, sf := range storeFactories {
		t.Run(sf.name, func(t *testing.T) {
			instances, history := sf.make(t)
			ctx := context.Background()

			if err := instances.CreateInstance(ctx, newInstance("wf-1", "approval-flow", api.StatusRunning)); err != nil {
				t.Fatalf("CreateInstance: %v", err)
			}

			ev := func(seq int64, kind api.EventKind) api.HistoryEvent {
				return api.HistoryEvent{
					Sequence:   seq,
					InstanceID: "wf-1",
					Kind:       kind,
					Timestamp:  time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC),
					Payload:    json.RawMessage(`{}`),
				}
			}

			if err := history.AppendEvents(ctx, "wf-1", 0, []api.HistoryEvent{ev(1, api.EventOrchestratorStarted)}); err != nil {
				t.Fatalf("first append: %v", err)
			}
			if err := history.AppendEvents(ctx, "wf-1", 1, []api.HistoryEvent{
				ev(2, api.EventActivityScheduled),
				ev(3, api.EventTimerCreated),
			}); err != nil {
				t.Fatalf("second append: %v", err)
			}

			// A writer holding a stale version must lose, atomically.
			err := history.AppendEvents(ctx, "wf-1", 1, []api.HistoryEvent{ev(2, api.EventActivityScheduled)})
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("stale append: got %v, want ErrConflict", err)
			}

			// Appending to an unknown instance is an error, not an
			// implicit stream creation.
			err = history.AppendEvents(ctx, "ghost", 0, []api.HistoryEvent{ev(1, api.EventOrchestratorStarted)})
			if !errors.Is(err, ErrInstanceNotFound) {
				t.Fatalf("ghost append: got %v, want ErrInstanceNotFound", err)
			}

			stream, err := history.ReadHistory(ctx, "wf-1")
			if err != nil {
				t.Fatalf("ReadHistory: %v", err)
			}
			if len(stream) != 3 {
				t.Fatalf("stream has %d events, want 3", len(stream))
			}
			for i, got := range stream {
				if got.Sequence != int64(i+1) {
					t.Fatalf("event %d has sequence %d", i, got.Sequence)
				}
			}

			// Unknown instance reads as empty, deletion is idempotent.
			empty, err := history.ReadHistory(ctx, "ghost")
			if err != nil || len(empty) != 0 {
				t.Fatalf("ghost read: %v, %d events", err, len(empty))
			}
			if err := history.DeleteHistory(ctx, "wf-1"); err != nil {
				t.Fatalf("DeleteHistory: %v", err)
			}
			if stream, _ := history.ReadHistory(ctx, "wf-1"); len(stream) != 0 {
				t.Fatalf("history survived deletion: %d events", len(stream))
			}
		})
	}
}

func TestHistoryEventFieldsRoundTrip(t *testing.T) {
	for _, sf := range storeFactories {
		t.Run(sf.name, func(t *testing.T) {
			instances, history := sf.make(t)
			ctx := context.Background()

			if err := instances.CreateInstance(ctx, newInstance("wf-1", "approval-flow", api.StatusRunning)); err != nil {
				t.Fatalf("CreateInstance: %v", err)
			}

			fireAt := time.Date(2026, 4, 7, 8, 0, 0, 0, time.UTC)
			in := api.HistoryEvent{
				Sequence:   1,
				InstanceID: "wf-1",
				Kind:       api.EventTimerCreated,
				Timestamp:  fireAt.Add(-24 * time.Hour),
				TaskID:     3,
				Name:       "sla",
				Payload:    json.RawMessage(`{"hours":24}`),
				FireAt:     fireAt,
				ChildID:    "wf-1:3",
			}
			if err := history.AppendEvents(ctx, "wf-1", 0, []api.HistoryEvent{in}); err != nil {
				t.Fatalf("append: %v", err)
			}

			stream, err := history.ReadHistory(ctx, "wf-1")
			if err != nil || len(stream) != 1 {
				t.Fatalf("read: %v, %d events", err, len(stream))
			}
			got := stream[0]
			if got.TaskID != 3 || got.Name != "sla" || got.ChildID != "wf-1:3" {
				t.Fatalf("fields lost: %+v", got)
			}
			if !got.FireAt.Equal(fireAt) {
				t.Fatalf("fire-at lost: %v", got.FireAt)
			}
			if string(got.Payload) != `{"hours":24}` {
				t.Fatalf("payload lost: %s", got.Payload)
			}
		})
	}
}
