package api

import (
	"encoding/json"
	"time"
)

// OrchestratorFunc is the body of a workflow definition.
//
// The body must be deterministic: a pure function of its input and the
// results delivered through the context. It must not read the wall clock,
// generate randomness, or perform I/O directly; those needs are served by
// the context primitives, whose results are recorded in history and
// replayed bit-for-bit after a crash.
//
// The body is re-executed from the top on every turn. Awaits that are
// already resolved in history return immediately; the first unresolved
// await suspends the turn.
type OrchestratorFunc func(ctx OrchestrationContext, input json.RawMessage) (any, error)

// OrchestrationContext is the only window an orchestration body has onto
// the outside world.
type OrchestrationContext interface {
	// InstanceID returns the ID of the running instance.
	InstanceID() string

	// CurrentTime returns the deterministic orchestration time: the
	// timestamp of the latest history event applied at this point of the
	// body, never the real clock. It is stable across replays.
	CurrentTime() time.Time

	// ScheduleActivity records an activity-scheduled decision and returns
	// a future for its result. The activity runs out-of-band; the future
	// resolves when ActivityCompleted or ActivityFailed is recorded.
	ScheduleActivity(name string, args any) Future

	// CreateTimer schedules a durable timer firing d after CurrentTime.
	CreateTimer(d time.Duration) TimerFuture

	// CreateTimerUntil schedules a durable timer firing at the given time.
	CreateTimerUntil(at time.Time) TimerFuture

	// WaitForEvent returns a future for the next external event with the
	// given name. Events raised before the wait is reached are buffered
	// and matched in arrival order.
	WaitForEvent(name string) Future

	// StartSubOrchestration starts a child instance of the named
	// orchestration and returns a future for its terminal result.
	StartSubOrchestration(orchestration string, input any) Future

	// Any suspends until the first of the given futures resolves and
	// returns its index. The winner is decided once, by history order,
	// and is stable under replay. Losing futures stay valid; a losing
	// timer is typically canceled by the body.
	Any(futures ...Future) int
}

// Future is an awaitable handle returned by the context primitives.
type Future interface {
	// Get suspends the orchestration at this point until the awaited
	// result is recorded in history, then decodes it into out (which may
	// be nil). If the awaited task failed permanently, Get returns a
	// *TaskFailedError the body can branch on.
	Get(out any) error

	// Resolved reports whether the result is already recorded, without
	// suspending.
	Resolved() bool
}

// TimerFuture is a Future with a cancel handle for losing race branches.
type TimerFuture interface {
	Future

	// Cancel marks the timer canceled so a later fire is ignored. It is
	// a no-op if the timer already fired; the fire-then-cancel race
	// neither fires twice nor errors.
	Cancel()
}
