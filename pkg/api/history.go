package api

import (
	"encoding/json"
	"time"
)

// EventKind identifies the type of a history event.
type EventKind string

const (
	EventOrchestratorStarted   EventKind = "orchestrator-started"
	EventOrchestratorCompleted EventKind = "orchestrator-completed"
	EventOrchestratorFailed    EventKind = "orchestrator-failed"
	EventOrchestratorCanceled  EventKind = "orchestrator-canceled"
	EventOrchestratorTimedOut  EventKind = "orchestrator-timed-out"

	EventActivityScheduled EventKind = "activity-scheduled"
	EventActivityCompleted EventKind = "activity-completed"
	EventActivityFailed    EventKind = "activity-failed"

	EventTimerCreated  EventKind = "timer-created"
	EventTimerFired    EventKind = "timer-fired"
	EventTimerCanceled EventKind = "timer-canceled"

	EventExternalEventReceived EventKind = "external-event-received"

	EventSubOrchestrationCreated   EventKind = "sub-orchestration-created"
	EventSubOrchestrationCompleted EventKind = "sub-orchestration-completed"
	EventSubOrchestrationFailed    EventKind = "sub-orchestration-failed"
)

// HistoryEvent is one entry in an instance's append-only history stream.
//
// The history is the single source of truth for an instance: replaying it
// from empty state through the orchestration body reconstructs every prior
// scheduling decision. Which fields are meaningful depends on Kind; unused
// fields stay zero.
type HistoryEvent struct {
	// Sequence is the 1-based position in the instance's stream.
	Sequence   int64     `json:"sequence"`
	InstanceID string    `json:"instance_id"`
	Kind       EventKind `json:"kind"`

	// Timestamp is recorded once, when the event is appended. On replay
	// the recorded value is authoritative; the engine never substitutes
	// the real clock.
	Timestamp time.Time `json:"timestamp"`

	// TaskID correlates scheduled work with its completion. Activity,
	// timer, and sub-orchestration decisions share a single per-instance
	// sequence assigned in decision order.
	TaskID int64 `json:"task_id,omitempty"`

	// Name is the activity name, external event name, or child
	// orchestration type.
	Name string `json:"name,omitempty"`

	// Payload carries the opaque JSON data for the event: activity args
	// or result, external event payload, terminal result, or an error
	// message for *Failed kinds.
	Payload json.RawMessage `json:"payload,omitempty"`

	// FireAt is set for timer-created events.
	FireAt time.Time `json:"fire_at,omitempty"`

	// ChildID is set for sub-orchestration events.
	ChildID string `json:"child_id,omitempty"`
}

// IsDecision reports whether the event records a scheduling decision made
// by the orchestration body. Decision events are the ones validated for
// determinism on replay.
func (e *HistoryEvent) IsDecision() bool {
	switch e.Kind {
	case EventActivityScheduled, EventTimerCreated, EventTimerCanceled, EventSubOrchestrationCreated:
		return true
	}
	return false
}
