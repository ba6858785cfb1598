package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/petrijr/turno/pkg/api"
)

// suspendSignal unwinds the orchestration body at its first unresolved
// await. It is recovered by runTurn; user code never sees it.
type suspendSignal struct{}

// ndSignal unwinds the body when a scheduling decision diverges from
// recorded history.
type ndSignal struct {
	err *api.NonDeterminismError
}

// execContext implements api.OrchestrationContext for one turn.
//
// It is a pure function of the instance's history: replaying the same
// history yields the same futures, resolutions, and decision sequence.
// New decisions made past the end of recorded history are accumulated in
// newEvents for the engine to commit after the turn.
type execContext struct {
	instanceID string
	history    []api.HistoryEvent

	// decisions are the recorded decision events, in history order; di is
	// the replay cursor. Every decision the body makes must match the
	// recorded one at the same position or the turn fails with a
	// NonDeterminismViolation.
	decisions []api.HistoryEvent
	di        int

	// nextTaskID is the shared per-instance sequence for activity, timer,
	// and sub-orchestration decisions.
	nextTaskID int64

	// now is the deterministic orchestration time: the timestamp of the
	// latest history event applied so far.
	now time.Time

	// wallNow stamps new events; it is recorded once per turn and becomes
	// authoritative history on commit.
	wallNow time.Time

	version   int64
	newEvents []api.HistoryEvent

	completionByTask map[int64]api.HistoryEvent
	canceledTimers   map[int64]bool
	eventsByName     map[string][]api.HistoryEvent
	eventCursor      map[string]int
}

func newExecContext(instanceID string, history []api.HistoryEvent, wallNow time.Time) *execContext {
	c := &execContext{
		instanceID:       instanceID,
		history:          history,
		wallNow:          wallNow,
		version:          int64(len(history)),
		completionByTask: make(map[int64]api.HistoryEvent),
		canceledTimers:   make(map[int64]bool),
		eventsByName:     make(map[string][]api.HistoryEvent),
		eventCursor:      make(map[string]int),
	}

	for _, ev := range history {
		switch ev.Kind {
		case api.EventOrchestratorStarted:
			c.now = ev.Timestamp
		case api.EventActivityCompleted, api.EventActivityFailed,
			api.EventTimerFired,
			api.EventSubOrchestrationCompleted, api.EventSubOrchestrationFailed:
			c.completionByTask[ev.TaskID] = ev
		case api.EventTimerCanceled:
			c.canceledTimers[ev.TaskID] = true
		case api.EventExternalEventReceived:
			c.eventsByName[ev.Name] = append(c.eventsByName[ev.Name], ev)
		}
		if ev.IsDecision() {
			c.decisions = append(c.decisions, ev)
		}
	}

	return c
}

var _ api.OrchestrationContext = (*execContext)(nil)

func (c *execContext) InstanceID() string { return c.instanceID }

func (c *execContext) CurrentTime() time.Time { return c.now }

// observeTime advances the deterministic clock to the timestamp of a
// resolved await. Time never moves backwards.
func (c *execContext) observeTime(t time.Time) {
	if t.After(c.now) {
		c.now = t
	}
}

func (c *execContext) ScheduleActivity(name string, args any) api.Future {
	ev := c.nextDecision(api.EventActivityScheduled, name, c.marshal(args), time.Time{})

	f := &future{ctx: c, taskID: ev.TaskID, name: name}
	c.resolveFromHistory(f)
	return f
}

func (c *execContext) CreateTimer(d time.Duration) api.TimerFuture {
	return c.CreateTimerUntil(c.now.Add(d))
}

func (c *execContext) CreateTimerUntil(at time.Time) api.TimerFuture {
	ev := c.nextDecision(api.EventTimerCreated, "", nil, at)

	f := &future{ctx: c, taskID: ev.TaskID, timer: true}
	c.resolveFromHistory(f)
	return &timerFuture{future: f}
}

func (c *execContext) WaitForEvent(name string) api.Future {
	f := &future{ctx: c, name: name}

	// Events raised before this wait was reached are buffered in history;
	// waits consume them in arrival order.
	idx := c.eventCursor[name]
	c.eventCursor[name] = idx + 1

	if evs := c.eventsByName[name]; idx < len(evs) {
		ev := evs[idx]
		f.resolved = true
		f.resolvedSeq = ev.Sequence
		f.resolvedAt = ev.Timestamp
		f.payload = ev.Payload
	}
	return f
}

func (c *execContext) StartSubOrchestration(orchestration string, input any) api.Future {
	ev := c.nextDecision(api.EventSubOrchestrationCreated, orchestration, c.marshal(input), time.Time{})

	f := &future{ctx: c, taskID: ev.TaskID, name: orchestration}
	c.resolveFromHistory(f)
	return f
}

func (c *execContext) Any(futures ...api.Future) int {
	winner := -1
	var winnerSeq int64
	var winnerAt time.Time

	for i, f := range futures {
		r, ok := f.(resolvable)
		if !ok {
			panic(fmt.Sprintf("foreign future type %T passed to Any", f))
		}
		resolved, seq, at := r.resolution()
		if !resolved {
			continue
		}
		if winner == -1 || seq < winnerSeq {
			winner = i
			winnerSeq = seq
			winnerAt = at
		}
	}

	if winner == -1 {
		panic(suspendSignal{})
	}

	c.observeTime(winnerAt)
	return winner
}

// nextDecision validates the body's next scheduling decision against
// recorded history, or records it as a new event past the end of history.
func (c *execContext) nextDecision(kind api.EventKind, name string, payload json.RawMessage, fireAt time.Time) api.HistoryEvent {
	c.nextTaskID++
	taskID := c.nextTaskID

	if c.di < len(c.decisions) {
		rec := c.decisions[c.di]

		// Timer cancellations occupy decision slots but no task ID; they
		// are consumed by timerFuture.Cancel, never here.
		if rec.Kind != kind || rec.Name != name || rec.TaskID != taskID {
			panic(ndSignal{err: &api.NonDeterminismError{
				InstanceID: c.instanceID,
				Sequence:   rec.Sequence,
				Recorded:   fmt.Sprintf("%s %q (task %d)", rec.Kind, rec.Name, rec.TaskID),
				Attempted:  fmt.Sprintf("%s %q (task %d)", kind, name, taskID),
			}})
		}
		c.di++
		return rec
	}

	ev := api.HistoryEvent{
		Sequence:   c.version + int64(len(c.newEvents)) + 1,
		InstanceID: c.instanceID,
		Kind:       kind,
		Timestamp:  c.wallNow,
		TaskID:     taskID,
		Name:       name,
		Payload:    payload,
		FireAt:     fireAt,
	}
	if kind == api.EventSubOrchestrationCreated {
		ev.ChildID = fmt.Sprintf("%s:%d", c.instanceID, taskID)
	}
	c.newEvents = append(c.newEvents, ev)
	return ev
}

// appendEvent records a non-decision event (terminal transitions) at the
// end of the turn.
func (c *execContext) appendEvent(kind api.EventKind, payload json.RawMessage) {
	c.newEvents = append(c.newEvents, api.HistoryEvent{
		Sequence:   c.version + int64(len(c.newEvents)) + 1,
		InstanceID: c.instanceID,
		Kind:       kind,
		Timestamp:  c.wallNow,
		Payload:    payload,
	})
}

func (c *execContext) resolveFromHistory(f *future) {
	ev, ok := c.completionByTask[f.taskID]
	if !ok {
		return
	}

	f.resolved = true
	f.resolvedSeq = ev.Sequence
	f.resolvedAt = ev.Timestamp

	switch ev.Kind {
	case api.EventActivityFailed, api.EventSubOrchestrationFailed:
		var msg string
		if len(ev.Payload) > 0 {
			_ = json.Unmarshal(ev.Payload, &msg)
		}
		f.failure = &api.TaskFailedError{TaskID: f.taskID, Name: f.name, Message: msg}
	default:
		f.payload = ev.Payload
	}
}

// marshal encodes a decision payload. A value that cannot be marshaled is
// a definition bug; the resulting panic fails the instance.
func (c *execContext) marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("unmarshalable payload in instance %s: %v", c.instanceID, err))
	}
	return b
}

// resolvable lets Any inspect futures without exposing engine internals.
type resolvable interface {
	resolution() (resolved bool, seq int64, at time.Time)
}

type future struct {
	ctx    *execContext
	taskID int64
	name   string
	timer  bool

	resolved    bool
	resolvedSeq int64
	resolvedAt  time.Time
	payload     json.RawMessage
	failure     *api.TaskFailedError
}

var _ api.Future = (*future)(nil)
var _ resolvable = (*future)(nil)

func (f *future) resolution() (bool, int64, time.Time) {
	return f.resolved, f.resolvedSeq, f.resolvedAt
}

func (f *future) Resolved() bool { return f.resolved }

func (f *future) Get(out any) error {
	if !f.resolved {
		panic(suspendSignal{})
	}

	f.ctx.observeTime(f.resolvedAt)

	if f.failure != nil {
		return f.failure
	}
	if out == nil || len(f.payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.payload, out)
}

type timerFuture struct {
	*future
}

var _ api.TimerFuture = (*timerFuture)(nil)

// Cancel marks an unfired timer canceled. A timer that already fired (it
// lost no race; it is simply resolved) is left alone, so the
// fire-then-cancel race neither fires twice nor errors.
func (f *timerFuture) Cancel() {
	c := f.ctx

	if f.resolved {
		return
	}
	if c.canceledTimers[f.taskID] {
		// Replaying a cancellation: consume the matching decision slot.
		if c.di < len(c.decisions) {
			rec := c.decisions[c.di]
			if rec.Kind == api.EventTimerCanceled && rec.TaskID == f.taskID {
				c.di++
				return
			}
		}
		return
	}

	if c.di < len(c.decisions) {
		rec := c.decisions[c.di]
		panic(ndSignal{err: &api.NonDeterminismError{
			InstanceID: c.instanceID,
			Sequence:   rec.Sequence,
			Recorded:   fmt.Sprintf("%s %q (task %d)", rec.Kind, rec.Name, rec.TaskID),
			Attempted:  fmt.Sprintf("%s (task %d)", api.EventTimerCanceled, f.taskID),
		}})
	}

	c.newEvents = append(c.newEvents, api.HistoryEvent{
		Sequence:   c.version + int64(len(c.newEvents)) + 1,
		InstanceID: c.instanceID,
		Kind:       api.EventTimerCanceled,
		Timestamp:  c.wallNow,
		TaskID:     f.taskID,
	})
	c.canceledTimers[f.taskID] = true
}
