package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	_ "modernc.org/sqlite"

	"github.com/petrijr/turno/internal/persistence"
	"github.com/petrijr/turno/internal/taskqueue"
	"github.com/petrijr/turno/pkg/api"
)

type backendFactory struct {
	name string
	make func(t *testing.T) persistence.Persistence
}

var backends = []backendFactory{
	{
		name: "memory",
		make: func(t *testing.T) persistence.Persistence {
			store := persistence.NewInMemoryStore()
			return persistence.Persistence{Instances: store, History: store}
		},
	},
	{
		name: "sqlite",
		make: func(t *testing.T) persistence.Persistence {
			db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "engine_test.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { db.Close() })

			store, err := persistence.NewSQLiteStore(db)
			if err != nil {
				t.Fatalf("sqlite store: %v", err)
			}
			return persistence.Persistence{Instances: store, History: store}
		},
	},
}

type fixture struct {
	t   *testing.T
	eng api.Engine
	q   taskqueue.Queue
	clk *clock.Mock
}

func newFixture(t *testing.T, p persistence.Persistence) *fixture {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	q := taskqueue.NewInMemoryQueue(256)
	eng, err := New(Config{Persistence: p, Queue: q, Clock: clk})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{t: t, eng: eng, q: q, clk: clk}
}

// drain processes queued tasks synchronously until the queue is empty,
// standing in for a worker pool.
func (f *fixture) drain() {
	f.t.Helper()
	ctx := context.Background()

	for f.q.Len() > 0 {
		dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		task, err := f.q.Dequeue(dctx)
		cancel()
		if err != nil {
			f.t.Fatalf("dequeue: %v", err)
		}

		switch task.Type {
		case taskqueue.TaskTypeResume:
			if _, err := f.eng.ResumeInstance(ctx, task.InstanceID); err != nil {
				f.t.Fatalf("resume %s: %v", task.InstanceID, err)
			}
		case taskqueue.TaskTypeActivity:
			if err := f.eng.ExecuteActivity(ctx, task.InstanceID, task.TaskID, task.Activity, task.Args); err != nil {
				f.t.Fatalf("activity %s: %v", task.Activity, err)
			}
		default:
			f.t.Fatalf("unexpected task type %s", task.Type)
		}
	}
}

// advance moves the virtual clock and processes everything it triggered.
func (f *fixture) advance(d time.Duration) {
	f.t.Helper()
	f.clk.Add(d)
	f.drain()
}

func (f *fixture) instance(id string) *api.WorkflowInstance {
	f.t.Helper()
	inst, err := f.eng.GetInstance(context.Background(), id)
	if err != nil {
		f.t.Fatalf("GetInstance(%s): %v", id, err)
	}
	return inst
}

func (f *fixture) history(id string) []api.HistoryEvent {
	f.t.Helper()
	history, err := f.eng.GetHistory(context.Background(), id)
	if err != nil {
		f.t.Fatalf("GetHistory(%s): %v", id, err)
	}
	return history
}

func countKind(history []api.HistoryEvent, kind api.EventKind) int {
	n := 0
	for _, ev := range history {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func registerEcho(t *testing.T, eng api.Engine) {
	t.Helper()
	err := eng.RegisterActivity(api.ActivityDefinition{
		Name: "echo",
		Fn: func(ctx context.Context, input json.RawMessage) (any, error) {
			var s string
			if err := json.Unmarshal(input, &s); err != nil {
				return nil, err
			}
			return s, nil
		},
	})
	if err != nil {
		t.Fatalf("register echo: %v", err)
	}
}

func TestActivitySequenceCompletes(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))
			registerEcho(t, f.eng)

			err := f.eng.RegisterOrchestration("sequence", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				var first, second string
				if err := ctx.ScheduleActivity("echo", "one").Get(&first); err != nil {
					return nil, err
				}
				if err := ctx.ScheduleActivity("echo", "two").Get(&second); err != nil {
					return nil, err
				}
				return first + "+" + second, nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			id, err := f.eng.Start(context.Background(), "sequence", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			inst := f.instance(id)
			if inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED (failure: %s)", inst.Status, inst.FailureMessage)
			}
			var result string
			if err := json.Unmarshal(inst.Result, &result); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			if result != "one+two" {
				t.Fatalf("result = %q, want %q", result, "one+two")
			}

			history := f.history(id)
			if got := countKind(history, api.EventActivityScheduled); got != 2 {
				t.Fatalf("scheduled %d activities, want 2", got)
			}
			if got := countKind(history, api.EventActivityCompleted); got != 2 {
				t.Fatalf("completed %d activities, want 2", got)
			}
		})
	}
}

func TestActivityFailureIsBranchable(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))

			err := f.eng.RegisterActivity(api.ActivityDefinition{
				Name: "always-fails",
				Fn: func(ctx context.Context, input json.RawMessage) (any, error) {
					return nil, api.Permanent(errors.New("downstream rejected the call"))
				},
			})
			if err != nil {
				t.Fatalf("register activity: %v", err)
			}

			err = f.eng.RegisterOrchestration("branching", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				err := ctx.ScheduleActivity("always-fails", nil).Get(nil)
				if tf, ok := api.AsTaskFailed(err); ok {
					return "handled:" + tf.Name, nil
				}
				return nil, err
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			id, err := f.eng.Start(context.Background(), "branching", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			inst := f.instance(id)
			if inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", inst.Status)
			}
			var result string
			_ = json.Unmarshal(inst.Result, &result)
			if result != "handled:always-fails" {
				t.Fatalf("result = %q", result)
			}
		})
	}
}

func TestExternalEventBufferedBeforeWait(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))
			registerEcho(t, f.eng)

			err := f.eng.RegisterOrchestration("waits-late", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				// The activity turn gives the test a window to raise the
				// event before this wait is reached.
				if err := ctx.ScheduleActivity("echo", "warmup").Get(nil); err != nil {
					return nil, err
				}
				var payload string
				if err := ctx.WaitForEvent("go").Get(&payload); err != nil {
					return nil, err
				}
				return payload, nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "waits-late", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}

			// Deliver the event before any turn has run: it must buffer,
			// not error, and resolve the wait once reached.
			if err := f.eng.RaiseEvent(ctx, id, "go", "buffered-payload"); err != nil {
				t.Fatalf("RaiseEvent: %v", err)
			}
			f.drain()

			inst := f.instance(id)
			if inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", inst.Status)
			}
			var result string
			_ = json.Unmarshal(inst.Result, &result)
			if result != "buffered-payload" {
				t.Fatalf("result = %q", result)
			}
		})
	}
}

func TestTimerFiresOnVirtualClock(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))

			err := f.eng.RegisterOrchestration("sleeper", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				before := ctx.CurrentTime()
				if err := ctx.CreateTimer(6 * time.Hour).Get(nil); err != nil {
					return nil, err
				}
				return ctx.CurrentTime().Sub(before).String(), nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			id, err := f.eng.Start(context.Background(), "sleeper", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			if inst := f.instance(id); inst.Status != api.StatusRunning {
				t.Fatalf("status before fire = %s, want RUNNING", inst.Status)
			}

			f.advance(6 * time.Hour)

			inst := f.instance(id)
			if inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", inst.Status)
			}
			var elapsed string
			_ = json.Unmarshal(inst.Result, &elapsed)
			if elapsed != "6h0m0s" {
				t.Fatalf("orchestration time advanced by %s, want 6h0m0s", elapsed)
			}
		})
	}
}

func raceOrchestration(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	event := ctx.WaitForEvent("decision")
	timer := ctx.CreateTimer(24 * time.Hour)

	if ctx.Any(event, timer) == 1 {
		return "timed-out", nil
	}
	timer.Cancel()

	var payload string
	if err := event.Get(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func TestRaceEventWinsAndCancelsTimer(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))

			if err := f.eng.RegisterOrchestration("race", raceOrchestration); err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "race", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			f.advance(1 * time.Hour)
			if err := f.eng.RaiseEvent(ctx, id, "decision", "event-won"); err != nil {
				t.Fatalf("RaiseEvent: %v", err)
			}
			f.drain()

			inst := f.instance(id)
			if inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", inst.Status)
			}
			var result string
			_ = json.Unmarshal(inst.Result, &result)
			if result != "event-won" {
				t.Fatalf("result = %q", result)
			}

			history := f.history(id)
			if got := countKind(history, api.EventTimerCanceled); got != 1 {
				t.Fatalf("%d timer-canceled events, want 1", got)
			}
			if got := countKind(history, api.EventTimerFired); got != 0 {
				t.Fatalf("%d timer-fired events, want 0", got)
			}

			// The canceled timer must stay silent after its deadline.
			f.advance(48 * time.Hour)
			if got := countKind(f.history(id), api.EventTimerFired); got != 0 {
				t.Fatalf("canceled timer fired after the fact")
			}
		})
	}
}

func TestRaceTimerWins(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))

			if err := f.eng.RegisterOrchestration("race", raceOrchestration); err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "race", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			f.advance(24 * time.Hour)

			inst := f.instance(id)
			if inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", inst.Status)
			}
			var result string
			_ = json.Unmarshal(inst.Result, &result)
			if result != "timed-out" {
				t.Fatalf("result = %q, want timed-out", result)
			}

			// A late event against the finished instance is rejected.
			err = f.eng.RaiseEvent(ctx, id, "decision", "too-late")
			if !errors.Is(err, api.ErrInstanceNotWaiting) {
				t.Fatalf("late RaiseEvent: got %v, want ErrInstanceNotWaiting", err)
			}
		})
	}
}

func TestDuplicateActivityCompletionIgnored(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))
			registerEcho(t, f.eng)

			err := f.eng.RegisterOrchestration("single", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				var out string
				if err := ctx.ScheduleActivity("echo", "once").Get(&out); err != nil {
					return nil, err
				}
				if err := ctx.WaitForEvent("hold").Get(nil); err != nil {
					return nil, err
				}
				return out, nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "single", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			// Re-deliver the same activity task, as a crashed worker
			// would after restart. The duplicate completion must be
			// dropped, not appended twice.
			if err := f.eng.ExecuteActivity(ctx, id, 1, "echo", json.RawMessage(`"once"`)); err != nil {
				t.Fatalf("duplicate ExecuteActivity: %v", err)
			}
			f.drain()

			if got := countKind(f.history(id), api.EventActivityCompleted); got != 1 {
				t.Fatalf("%d activity-completed events, want 1", got)
			}

			if err := f.eng.RaiseEvent(ctx, id, "hold", nil); err != nil {
				t.Fatalf("RaiseEvent: %v", err)
			}
			f.drain()
			if inst := f.instance(id); inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", inst.Status)
			}
		})
	}
}

func TestCancelIsFinal(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))

			if err := f.eng.RegisterOrchestration("race", raceOrchestration); err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "race", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			if err := f.eng.Cancel(ctx, id, "employee withdrew the request"); err != nil {
				t.Fatalf("Cancel: %v", err)
			}

			inst := f.instance(id)
			if inst.Status != api.StatusCanceled {
				t.Fatalf("status = %s, want CANCELED", inst.Status)
			}

			// Cancel again: idempotent no-op.
			if err := f.eng.Cancel(ctx, id, "again"); err != nil {
				t.Fatalf("second Cancel: %v", err)
			}

			// Events and timer fires after cancellation never revive it.
			err = f.eng.RaiseEvent(ctx, id, "decision", "late")
			if !errors.Is(err, api.ErrInstanceNotWaiting) {
				t.Fatalf("RaiseEvent after cancel: got %v, want ErrInstanceNotWaiting", err)
			}
			f.advance(48 * time.Hour)
			if got := f.instance(id); got.Status != api.StatusCanceled {
				t.Fatalf("status after timer window = %s, want CANCELED", got.Status)
			}
		})
	}
}

func TestDuplicateInstanceIDAndTerminalReuse(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))
			registerEcho(t, f.eng)

			err := f.eng.RegisterOrchestration("quick", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				var out string
				if err := ctx.ScheduleActivity("echo", "hi").Get(&out); err != nil {
					return nil, err
				}
				return out, nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			if _, err := f.eng.Start(ctx, "quick", nil, api.WithInstanceID("fixed")); err != nil {
				t.Fatalf("Start: %v", err)
			}

			// Active ID may not be reused.
			_, err = f.eng.Start(ctx, "quick", nil, api.WithInstanceID("fixed"))
			if !errors.Is(err, api.ErrDuplicateInstanceID) {
				t.Fatalf("duplicate start: got %v, want ErrDuplicateInstanceID", err)
			}

			f.drain()
			if inst := f.instance("fixed"); inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", inst.Status)
			}

			// Terminal ID may be reused; the old run is replaced.
			if _, err := f.eng.Start(ctx, "quick", nil, api.WithInstanceID("fixed")); err != nil {
				t.Fatalf("reuse terminal ID: %v", err)
			}
			f.drain()

			history := f.history("fixed")
			if got := countKind(history, api.EventOrchestratorStarted); got != 1 {
				t.Fatalf("%d started events after reuse, want 1 (fresh history)", got)
			}
		})
	}
}

func TestNonDeterministicBodyFailsInstance(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))
			registerEcho(t, f.eng)

			activityName := "echo"
			err := f.eng.RegisterOrchestration("unstable", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				var out string
				if err := ctx.ScheduleActivity(activityName, "x").Get(&out); err != nil {
					return nil, err
				}
				return out, nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "unstable", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}

			// First turn records the echo decision.
			if _, err := f.eng.ResumeInstance(ctx, id); err != nil {
				t.Fatalf("first resume: %v", err)
			}

			// The body now decides differently than recorded history.
			activityName = "something-else"
			f.drain()

			inst := f.instance(id)
			if inst.Status != api.StatusFailed {
				t.Fatalf("status = %s, want FAILED", inst.Status)
			}
			if inst.FailureKind != api.FailureNonDeterminism {
				t.Fatalf("failure kind = %s, want %s", inst.FailureKind, api.FailureNonDeterminism)
			}
			if inst.FailureMessage == "" || inst.LastSequence == 0 {
				t.Fatalf("failure diagnostics missing: %+v", inst)
			}
		})
	}
}

func TestSubOrchestrationPropagatesResult(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))
			registerEcho(t, f.eng)

			err := f.eng.RegisterOrchestration("child", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				var out string
				if err := ctx.ScheduleActivity("echo", "from-child").Get(&out); err != nil {
					return nil, err
				}
				return out, nil
			})
			if err != nil {
				t.Fatalf("register child: %v", err)
			}
			err = f.eng.RegisterOrchestration("parent", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				var out string
				if err := ctx.StartSubOrchestration("child", nil).Get(&out); err != nil {
					return nil, err
				}
				return "parent-saw:" + out, nil
			})
			if err != nil {
				t.Fatalf("register parent: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "parent", nil, api.WithInstanceID("p1"))
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			inst := f.instance(id)
			if inst.Status != api.StatusCompleted {
				t.Fatalf("parent status = %s, want COMPLETED", inst.Status)
			}
			var result string
			_ = json.Unmarshal(inst.Result, &result)
			if result != "parent-saw:from-child" {
				t.Fatalf("result = %q", result)
			}

			// Child ID derives from the parent's task, so replays and
			// re-dispatches converge on the same child.
			child := f.instance("p1:1")
			if child.ParentID != "p1" {
				t.Fatalf("child parent = %q, want p1", child.ParentID)
			}
			if child.Status != api.StatusCompleted {
				t.Fatalf("child status = %s", child.Status)
			}
		})
	}
}

func TestWaitForInstance(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))
			registerEcho(t, f.eng)

			err := f.eng.RegisterOrchestration("quick", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				var out string
				if err := ctx.ScheduleActivity("echo", "done").Get(&out); err != nil {
					return nil, err
				}
				return out, nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "quick", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}

			done := make(chan *api.WorkflowInstance, 1)
			go func() {
				inst, err := f.eng.WaitForInstance(ctx, id)
				if err != nil {
					t.Errorf("WaitForInstance: %v", err)
				}
				done <- inst
			}()

			// Give the waiter a moment to register, then finish the work.
			time.Sleep(10 * time.Millisecond)
			f.drain()

			select {
			case inst := <-done:
				if inst != nil && inst.Status != api.StatusCompleted {
					t.Fatalf("status = %s, want COMPLETED", inst.Status)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("WaitForInstance did not return")
			}
		})
	}
}

func TestRehydrateRebuildsTimers(t *testing.T) {
	// Durable backend only: rehydration is meaningless for a store that
	// dies with the process.
	dbPath := filepath.Join(t.TempDir(), "rehydrate_test.db")

	openStore := func(t *testing.T) persistence.Persistence {
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		store, err := persistence.NewSQLiteStore(db)
		if err != nil {
			t.Fatalf("sqlite store: %v", err)
		}
		return persistence.Persistence{Instances: store, History: store}
	}

	register := func(t *testing.T, f *fixture) {
		err := f.eng.RegisterOrchestration("sleeper", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
			if err := ctx.CreateTimer(12 * time.Hour).Get(nil); err != nil {
				return nil, err
			}
			return "woke", nil
		})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	// Process one: start the instance and stop at the pending timer.
	f1 := newFixture(t, openStore(t))
	register(t, f1)
	id, err := f1.eng.Start(context.Background(), "sleeper", nil, api.WithInstanceID("sleepy"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	f1.drain()
	if inst := f1.instance(id); inst.Status != api.StatusRunning {
		t.Fatalf("status = %s, want RUNNING", inst.Status)
	}

	// Process two: fresh engine over the same store; the in-memory timer
	// from process one is gone until Rehydrate rebuilds it.
	f2 := newFixture(t, openStore(t))
	f2.clk.Set(f1.clk.Now())
	register(t, f2)

	n, err := f2.eng.Rehydrate(context.Background())
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if n != 1 {
		t.Fatalf("rehydrated %d instances, want 1", n)
	}
	f2.drain()

	f2.advance(12 * time.Hour)

	inst := f2.instance(id)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("status after rehydrate+fire = %s, want COMPLETED", inst.Status)
	}
	var result string
	_ = json.Unmarshal(inst.Result, &result)
	if result != "woke" {
		t.Fatalf("result = %q", result)
	}
}

func TestActivityRetryPolicy(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))

			attempts := 0
			err := f.eng.RegisterActivity(api.ActivityDefinition{
				Name: "flaky",
				Fn: func(ctx context.Context, input json.RawMessage) (any, error) {
					attempts++
					if attempts < 3 {
						return nil, fmt.Errorf("transient failure %d", attempts)
					}
					return "recovered", nil
				},
				Retry: &api.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond},
			})
			if err != nil {
				t.Fatalf("register activity: %v", err)
			}

			err = f.eng.RegisterOrchestration("retrying", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				var out string
				if err := ctx.ScheduleActivity("flaky", nil).Get(&out); err != nil {
					return nil, err
				}
				return out, nil
			})
			if err != nil {
				t.Fatalf("register: %v", err)
			}

			id, err := f.eng.Start(context.Background(), "retrying", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			if attempts != 3 {
				t.Fatalf("activity ran %d times, want 3", attempts)
			}
			inst := f.instance(id)
			if inst.Status != api.StatusCompleted {
				t.Fatalf("status = %s, want COMPLETED", inst.Status)
			}
			// One completion despite the retries.
			if got := countKind(f.history(id), api.EventActivityCompleted); got != 1 {
				t.Fatalf("%d activity-completed events, want 1", got)
			}
		})
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			f := newFixture(t, be.make(t))

			turns := 0
			if err := f.eng.RegisterOrchestration("race", func(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
				turns++
				return raceOrchestration(ctx, input)
			}); err != nil {
				t.Fatalf("register: %v", err)
			}

			ctx := context.Background()
			id, err := f.eng.Start(ctx, "race", nil)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.drain()

			if err := f.eng.RaiseEvent(ctx, id, "decision", "ok"); err != nil {
				t.Fatalf("RaiseEvent: %v", err)
			}
			f.drain()
			finished := f.history(id)

			// Extra resumes replay the terminal history without growing it
			// or disturbing the instance.
			for i := 0; i < 3; i++ {
				if _, err := f.eng.ResumeInstance(ctx, id); err != nil {
					t.Fatalf("extra resume: %v", err)
				}
			}
			if got := len(f.history(id)); got != len(finished) {
				t.Fatalf("history grew from %d to %d events on replay", len(finished), got)
			}
			if turns < 2 {
				t.Fatalf("body ran %d turns, expected at least 2", turns)
			}
		})
	}
}
