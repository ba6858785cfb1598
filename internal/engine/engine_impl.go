package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/petrijr/turno/internal/persistence"
	"github.com/petrijr/turno/internal/taskqueue"
	"github.com/petrijr/turno/pkg/api"
)

// DefaultRetryPolicy applies to activities whose definition carries no
// policy of its own.
var DefaultRetryPolicy = api.RetryPolicy{
	MaxAttempts:       3,
	InitialBackoff:    100 * time.Millisecond,
	MaxBackoff:        5 * time.Second,
	BackoffMultiplier: 2.0,
}

// appendRetries bounds the optimistic-concurrency retry loop. Conflicts
// under the per-instance lock only come from a competing process.
const appendRetries = 5

// Config wires an engine's collaborators together.
type Config struct {
	Persistence persistence.Persistence
	Queue       taskqueue.Queue

	// Clock drives durable timers. Defaults to the real clock; tests
	// inject a mock to run SLA windows in virtual time.
	Clock clock.Clock

	// Observer receives lifecycle callbacks. Defaults to NoopObserver.
	Observer api.Observer

	// DefaultRetry applies to activities without their own policy.
	// Defaults to DefaultRetryPolicy.
	DefaultRetry *api.RetryPolicy
}

type engineImpl struct {
	store    persistence.Persistence
	queue    taskqueue.Queue
	clk      clock.Clock
	observer api.Observer
	retry    api.RetryPolicy

	registry *registry
	locks    *instanceLocks
	timers   *timerService

	waitersMu sync.Mutex
	waiters   map[string][]chan *api.WorkflowInstance
}

// New builds an engine from cfg. Persistence and Queue are required.
func New(cfg Config) (api.Engine, error) {
	if cfg.Persistence.Instances == nil || cfg.Persistence.History == nil {
		return nil, errors.New("engine: persistence is required")
	}
	if cfg.Queue == nil {
		return nil, errors.New("engine: task queue is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}

	e := &engineImpl{
		store:    cfg.Persistence,
		queue:    cfg.Queue,
		clk:      cfg.Clock,
		observer: cfg.Observer,
		retry:    DefaultRetryPolicy,
		registry: newRegistry(),
		locks:    newInstanceLocks(),
		waiters:  make(map[string][]chan *api.WorkflowInstance),
	}
	if cfg.DefaultRetry != nil {
		e.retry = *cfg.DefaultRetry
	}
	e.timers = newTimerService(cfg.Clock, e.onTimerFired)
	return e, nil
}

func (e *engineImpl) RegisterOrchestration(name string, fn api.OrchestratorFunc) error {
	return e.registry.RegisterOrchestration(name, fn)
}

func (e *engineImpl) RegisterActivity(def api.ActivityDefinition) error {
	return e.registry.RegisterActivity(def)
}

func (e *engineImpl) Start(ctx context.Context, orchestration string, input any, opts ...api.StartOption) (string, error) {
	var options api.StartOptions
	for _, opt := range opts {
		opt(&options)
	}

	if _, err := e.registry.Orchestration(orchestration); err != nil {
		return "", err
	}

	payload, err := marshalPayload(input)
	if err != nil {
		return "", fmt.Errorf("marshal input: %w", err)
	}

	id := options.InstanceID
	if id == "" {
		id = uuid.NewString()
	}

	if err := e.startInstance(ctx, id, orchestration, payload, "", 0); err != nil {
		return "", err
	}
	return id, nil
}

// startInstance creates the instance row and its first history event, then
// enqueues the first turn. parentID/parentTaskID are set for children.
func (e *engineImpl) startInstance(ctx context.Context, id, orchestration string, input json.RawMessage, parentID string, parentTaskID int64) error {
	unlock := e.locks.Lock(id)

	existing, err := e.store.Instances.GetInstance(ctx, id)
	switch {
	case err == nil:
		if !existing.Terminal() {
			unlock()
			return fmt.Errorf("%w: %s", api.ErrDuplicateInstanceID, id)
		}
		// Terminal IDs may be reused; the old run is discarded whole.
		if err := e.store.History.DeleteHistory(ctx, id); err != nil {
			unlock()
			return fmt.Errorf("delete old history: %w", err)
		}
		if err := e.store.Instances.DeleteInstance(ctx, id); err != nil {
			unlock()
			return fmt.Errorf("delete old instance: %w", err)
		}
	case errors.Is(err, persistence.ErrInstanceNotFound):
		// New instance.
	default:
		unlock()
		return fmt.Errorf("lookup instance: %w", err)
	}

	now := e.clk.Now()
	inst := &api.WorkflowInstance{
		ID:            id,
		Type:          orchestration,
		Status:        api.StatusRunning,
		Input:         input,
		LastSequence:  1,
		ParentID:      parentID,
		ParentTaskID:  parentTaskID,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := e.store.Instances.CreateInstance(ctx, inst); err != nil {
		unlock()
		if errors.Is(err, persistence.ErrDuplicateInstance) {
			return fmt.Errorf("%w: %s", api.ErrDuplicateInstanceID, id)
		}
		return fmt.Errorf("create instance: %w", err)
	}

	started := api.HistoryEvent{
		Sequence:   1,
		InstanceID: id,
		Kind:       api.EventOrchestratorStarted,
		Timestamp:  now,
		Name:       orchestration,
		Payload:    input,
	}
	if err := e.store.History.AppendEvents(ctx, id, 0, []api.HistoryEvent{started}); err != nil {
		unlock()
		return fmt.Errorf("append start event: %w", err)
	}
	unlock()

	e.observer.OnOrchestrationStart(ctx, inst)
	return e.enqueueResume(ctx, id)
}

func (e *engineImpl) RaiseEvent(ctx context.Context, instanceID, name string, payload any) error {
	if name == "" {
		return errors.New("event name is required")
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	unlock := e.locks.Lock(instanceID)

	inst, err := e.getInstance(ctx, instanceID)
	if err != nil {
		unlock()
		return err
	}
	if inst.Terminal() {
		unlock()
		return fmt.Errorf("%w: instance %s is %s", api.ErrInstanceNotWaiting, instanceID, inst.Status)
	}

	ev := api.HistoryEvent{
		InstanceID: instanceID,
		Kind:       api.EventExternalEventReceived,
		Timestamp:  e.clk.Now(),
		Name:       name,
		Payload:    data,
	}
	if err := e.appendOne(ctx, inst, ev); err != nil {
		unlock()
		return err
	}
	unlock()

	e.observer.OnExternalEvent(ctx, instanceID, name)
	return e.enqueueResume(ctx, instanceID)
}

// appendOne appends a single out-of-band event (external event, timer
// fire, completion) to an instance's stream, assigning its sequence from
// the current stream length and retrying on cross-process conflicts.
// The caller must hold the instance lock; inst is updated in place.
func (e *engineImpl) appendOne(ctx context.Context, inst *api.WorkflowInstance, ev api.HistoryEvent) error {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		history, err := e.store.History.ReadHistory(ctx, inst.ID)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		version := int64(len(history))
		ev.Sequence = version + 1

		err = e.store.History.AppendEvents(ctx, inst.ID, version, []api.HistoryEvent{ev})
		if errors.Is(err, persistence.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return fmt.Errorf("append event: %w", err)
		}

		inst.LastSequence = ev.Sequence
		inst.LastUpdatedAt = e.clk.Now()
		if err := e.store.Instances.UpdateInstance(ctx, inst); err != nil {
			return fmt.Errorf("update instance: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: giving up after %d attempts: %v", api.ErrConcurrentAppendConflict, appendRetries, lastErr)
}

func (e *engineImpl) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	return e.getInstance(ctx, id)
}

func (e *engineImpl) getInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	inst, err := e.store.Instances.GetInstance(ctx, id)
	if errors.Is(err, persistence.ErrInstanceNotFound) {
		return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
	}
	return inst, err
}

func (e *engineImpl) GetHistory(ctx context.Context, id string) ([]api.HistoryEvent, error) {
	if _, err := e.getInstance(ctx, id); err != nil {
		return nil, err
	}
	return e.store.History.ReadHistory(ctx, id)
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	return e.store.Instances.ListInstances(ctx, opts)
}

func (e *engineImpl) Cancel(ctx context.Context, id, reason string) error {
	unlock := e.locks.Lock(id)

	inst, err := e.getInstance(ctx, id)
	if err != nil {
		unlock()
		return err
	}
	if inst.Terminal() {
		// Terminal states are final and cancellation is idempotent.
		unlock()
		return nil
	}

	payload, _ := json.Marshal(reason)
	ev := api.HistoryEvent{
		InstanceID: id,
		Kind:       api.EventOrchestratorCanceled,
		Timestamp:  e.clk.Now(),
		Payload:    payload,
	}
	inst.Status = api.StatusCanceled
	inst.FailureMessage = reason
	if err := e.appendOne(ctx, inst, ev); err != nil {
		unlock()
		return err
	}
	unlock()

	e.timers.StopAll(id)
	e.observer.OnOrchestrationFinished(ctx, inst)
	e.notifyWaiters(inst)
	e.completeParent(ctx, inst)
	return nil
}

func (e *engineImpl) ResumeInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	unlock := e.locks.Lock(id)

	inst, err := e.getInstance(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if inst.Terminal() {
		// Late resumes for finished instances are dropped.
		unlock()
		return inst, nil
	}

	fn, err := e.registry.Orchestration(inst.Type)
	if err != nil {
		unlock()
		return nil, err
	}

	started := e.clk.Now()
	var res turnResult
	var committed bool
	for attempt := 0; attempt < appendRetries && !committed; attempt++ {
		history, herr := e.store.History.ReadHistory(ctx, id)
		if herr != nil {
			unlock()
			return nil, fmt.Errorf("read history: %w", herr)
		}

		res = runTurn(id, fn, inst.Input, history, e.clk.Now())
		if len(res.events) == 0 {
			// Nothing new to record; the instance stays suspended.
			unlock()
			return inst, nil
		}

		aerr := e.store.History.AppendEvents(ctx, id, int64(len(history)), res.events)
		if errors.Is(aerr, persistence.ErrConflict) {
			// Another process appended first; replay over the longer
			// history and try again.
			continue
		}
		if aerr != nil {
			unlock()
			return nil, fmt.Errorf("append turn events: %w", aerr)
		}
		committed = true
	}
	if !committed {
		unlock()
		return nil, fmt.Errorf("%w: instance %s", api.ErrConcurrentAppendConflict, id)
	}

	inst.Status = res.status
	inst.LastSequence = res.events[len(res.events)-1].Sequence
	inst.LastUpdatedAt = e.clk.Now()
	switch res.status {
	case api.StatusCompleted, api.StatusTimedOut:
		inst.Result = res.result
	case api.StatusFailed:
		inst.FailureKind = res.failureKind
		inst.FailureMessage = res.failureMessage
	}
	if err := e.store.Instances.UpdateInstance(ctx, inst); err != nil {
		unlock()
		return nil, fmt.Errorf("update instance: %w", err)
	}
	unlock()

	e.observer.OnTurnCompleted(ctx, inst, len(res.events), e.clk.Now().Sub(started))

	// Dispatch outside the lock: children and activity completions take
	// their own instance locks.
	for _, ev := range res.events {
		switch ev.Kind {
		case api.EventActivityScheduled:
			if err := e.queue.Enqueue(ctx, taskqueue.Task{
				ID:         uuid.NewString(),
				Type:       taskqueue.TaskTypeActivity,
				InstanceID: id,
				TaskID:     ev.TaskID,
				Activity:   ev.Name,
				Args:       ev.Payload,
				EnqueuedAt: e.clk.Now(),
			}); err != nil {
				return nil, fmt.Errorf("enqueue activity: %w", err)
			}
		case api.EventTimerCreated:
			e.timers.Create(id, ev.TaskID, ev.FireAt)
		case api.EventTimerCanceled:
			e.timers.Cancel(id, ev.TaskID)
		case api.EventSubOrchestrationCreated:
			err := e.startInstance(ctx, ev.ChildID, ev.Name, ev.Payload, id, ev.TaskID)
			if err != nil && !errors.Is(err, api.ErrDuplicateInstanceID) {
				return nil, fmt.Errorf("start child %s: %w", ev.ChildID, err)
			}
		}
	}

	if inst.Terminal() {
		e.timers.StopAll(id)
		e.observer.OnOrchestrationFinished(ctx, inst)
		e.notifyWaiters(inst)
		e.completeParent(ctx, inst)
	}
	return inst, nil
}

func (e *engineImpl) ExecuteActivity(ctx context.Context, instanceID string, taskID int64, name string, args json.RawMessage) error {
	def, err := e.registry.Activity(name)
	if err != nil {
		return e.recordActivityFailure(ctx, instanceID, taskID, err.Error())
	}

	policy := e.retry
	if def.Retry != nil {
		policy = *def.Retry
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BackoffMultiplier <= 0 {
		policy.BackoffMultiplier = 2.0
	}

	e.observer.OnActivityStart(ctx, instanceID, taskID, name)
	started := e.clk.Now()

	var out any
	backoff := policy.InitialBackoff
	for attempt := 1; ; attempt++ {
		out, err = def.Fn(ctx, args)
		if err == nil || api.IsPermanent(err) || attempt >= policy.MaxAttempts {
			break
		}

		// Backoff runs on real time; it is an infrastructure delay, not
		// part of the orchestration's logical timeline.
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	e.observer.OnActivityCompleted(ctx, instanceID, taskID, name, err, e.clk.Now().Sub(started))

	if err != nil {
		return e.recordActivityFailure(ctx, instanceID, taskID, err.Error())
	}

	payload, merr := marshalPayload(out)
	if merr != nil {
		return e.recordActivityFailure(ctx, instanceID, taskID, fmt.Sprintf("unmarshalable activity result: %v", merr))
	}
	return e.recordActivityResult(ctx, instanceID, api.HistoryEvent{
		InstanceID: instanceID,
		Kind:       api.EventActivityCompleted,
		TaskID:     taskID,
		Payload:    payload,
	})
}

func (e *engineImpl) recordActivityFailure(ctx context.Context, instanceID string, taskID int64, msg string) error {
	payload, _ := json.Marshal(msg)
	return e.recordActivityResult(ctx, instanceID, api.HistoryEvent{
		InstanceID: instanceID,
		Kind:       api.EventActivityFailed,
		TaskID:     taskID,
		Payload:    payload,
	})
}

// recordActivityResult commits an activity's terminal event exactly once.
// Re-deliveries of the same (instance, task) completion are dropped, which
// makes at-least-once execution safe for the orchestration's history.
func (e *engineImpl) recordActivityResult(ctx context.Context, instanceID string, ev api.HistoryEvent) error {
	unlock := e.locks.Lock(instanceID)

	inst, err := e.getInstance(ctx, instanceID)
	if err != nil {
		unlock()
		if errors.Is(err, api.ErrInstanceNotFound) {
			return nil
		}
		return err
	}
	if inst.Terminal() {
		unlock()
		return nil
	}

	history, err := e.store.History.ReadHistory(ctx, instanceID)
	if err != nil {
		unlock()
		return fmt.Errorf("read history: %w", err)
	}
	if hasCompletion(history, ev.TaskID) {
		unlock()
		return nil
	}

	ev.Timestamp = e.clk.Now()
	if err := e.appendOne(ctx, inst, ev); err != nil {
		unlock()
		return err
	}
	unlock()

	return e.enqueueResume(ctx, instanceID)
}

// onTimerFired is the timer service callback. The event timestamp is the
// timer's scheduled fire time, so orchestration time advances by the full
// timer duration regardless of scheduling jitter.
func (e *engineImpl) onTimerFired(instanceID string, taskID int64, fireAt time.Time) {
	ctx := context.Background()

	unlock := e.locks.Lock(instanceID)

	inst, err := e.getInstance(ctx, instanceID)
	if err != nil || inst.Terminal() {
		unlock()
		return
	}

	history, err := e.store.History.ReadHistory(ctx, instanceID)
	if err != nil {
		unlock()
		return
	}
	for _, h := range history {
		if h.TaskID == taskID && (h.Kind == api.EventTimerFired || h.Kind == api.EventTimerCanceled) {
			unlock()
			return
		}
	}

	ev := api.HistoryEvent{
		InstanceID: instanceID,
		Kind:       api.EventTimerFired,
		Timestamp:  fireAt,
		TaskID:     taskID,
	}
	if err := e.appendOne(ctx, inst, ev); err != nil {
		unlock()
		return
	}
	unlock()

	e.observer.OnTimerFired(ctx, instanceID, taskID)
	_ = e.enqueueResume(ctx, instanceID)
}

// completeParent propagates a child's terminal status into its parent's
// history. A TimedOut child completes its parent's future normally with
// the timeout result; Failed and Canceled surface as a task failure.
func (e *engineImpl) completeParent(ctx context.Context, child *api.WorkflowInstance) {
	if child.ParentID == "" {
		return
	}

	ev := api.HistoryEvent{
		InstanceID: child.ParentID,
		TaskID:     child.ParentTaskID,
		Name:       child.Type,
		ChildID:    child.ID,
	}
	switch child.Status {
	case api.StatusCompleted, api.StatusTimedOut:
		ev.Kind = api.EventSubOrchestrationCompleted
		ev.Payload = child.Result
	case api.StatusFailed:
		ev.Kind = api.EventSubOrchestrationFailed
		ev.Payload, _ = json.Marshal(child.FailureMessage)
	case api.StatusCanceled:
		ev.Kind = api.EventSubOrchestrationFailed
		ev.Payload, _ = json.Marshal("canceled: " + child.FailureMessage)
	default:
		return
	}

	_ = e.recordActivityResult(ctx, child.ParentID, ev)
}

func (e *engineImpl) WaitForInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	inst, err := e.getInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Terminal() {
		return inst, nil
	}

	ch := make(chan *api.WorkflowInstance, 1)
	e.waitersMu.Lock()
	e.waiters[id] = append(e.waiters[id], ch)
	e.waitersMu.Unlock()

	// The instance may have finished between the lookup and the
	// registration; re-check so the waiter cannot miss the notification.
	inst, err = e.getInstance(ctx, id)
	if err == nil && inst.Terminal() {
		return inst, nil
	}

	select {
	case inst := <-ch:
		return inst, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *engineImpl) notifyWaiters(inst *api.WorkflowInstance) {
	e.waitersMu.Lock()
	chans := e.waiters[inst.ID]
	delete(e.waiters, inst.ID)
	e.waitersMu.Unlock()

	for _, ch := range chans {
		ch <- inst
	}
}

func (e *engineImpl) Rehydrate(ctx context.Context) (int, error) {
	running, err := e.store.Instances.ListInstances(ctx, api.InstanceListOptions{Status: api.StatusRunning})
	if err != nil {
		return 0, fmt.Errorf("list running instances: %w", err)
	}

	for _, inst := range running {
		unlock := e.locks.Lock(inst.ID)
		history, err := e.store.History.ReadHistory(ctx, inst.ID)
		if err != nil {
			unlock()
			return 0, fmt.Errorf("read history for %s: %w", inst.ID, err)
		}
		unlock()

		done := make(map[int64]bool)
		for _, ev := range history {
			switch ev.Kind {
			case api.EventActivityCompleted, api.EventActivityFailed,
				api.EventTimerFired, api.EventTimerCanceled,
				api.EventSubOrchestrationCompleted, api.EventSubOrchestrationFailed:
				done[ev.TaskID] = true
			}
		}

		for _, ev := range history {
			if done[ev.TaskID] {
				continue
			}
			switch ev.Kind {
			case api.EventTimerCreated:
				e.timers.Create(inst.ID, ev.TaskID, ev.FireAt)
			case api.EventActivityScheduled:
				if err := e.queue.Enqueue(ctx, taskqueue.Task{
					ID:         uuid.NewString(),
					Type:       taskqueue.TaskTypeActivity,
					InstanceID: inst.ID,
					TaskID:     ev.TaskID,
					Activity:   ev.Name,
					Args:       ev.Payload,
					EnqueuedAt: e.clk.Now(),
				}); err != nil {
					return 0, fmt.Errorf("re-enqueue activity: %w", err)
				}
			case api.EventSubOrchestrationCreated:
				err := e.startInstance(ctx, ev.ChildID, ev.Name, ev.Payload, inst.ID, ev.TaskID)
				if err != nil && !errors.Is(err, api.ErrDuplicateInstanceID) {
					return 0, fmt.Errorf("restart child %s: %w", ev.ChildID, err)
				}
			}
		}

		if err := e.enqueueResume(ctx, inst.ID); err != nil {
			return 0, err
		}
	}
	return len(running), nil
}

func (e *engineImpl) enqueueResume(ctx context.Context, id string) error {
	err := e.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeResume,
		InstanceID: id,
		EnqueuedAt: e.clk.Now(),
	})
	if err != nil {
		return fmt.Errorf("enqueue resume: %w", err)
	}
	return nil
}

func hasCompletion(history []api.HistoryEvent, taskID int64) bool {
	for _, ev := range history {
		switch ev.Kind {
		case api.EventActivityCompleted, api.EventActivityFailed,
			api.EventSubOrchestrationCompleted, api.EventSubOrchestrationFailed:
			if ev.TaskID == taskID {
				return true
			}
		}
	}
	return false
}

func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
