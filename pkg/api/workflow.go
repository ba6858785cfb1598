package api

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a workflow instance.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// Terminal reports whether the status is final. Terminal instances are
// never resumed; late timer fires and event deliveries are dropped.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusTimedOut:
		return true
	}
	return false
}

// FailureKind classifies why an instance entered StatusFailed.
type FailureKind string

const (
	// FailureOrchestration means the orchestration body returned an error.
	FailureOrchestration FailureKind = "orchestration-error"

	// FailureNonDeterminism means a resumed body attempted a scheduling
	// decision that diverged from recorded history. This is a definition
	// bug and is never repaired automatically.
	FailureNonDeterminism FailureKind = "non-determinism"

	// FailurePanic means the orchestration body panicked.
	FailurePanic FailureKind = "panic"
)

// WorkflowInstance is one execution of a registered orchestration.
//
// Instances are owned by the engine and mutated only as a consequence of
// history replay; callers observe them through GetInstance/ListInstances.
type WorkflowInstance struct {
	ID     string
	Type   string
	Status Status

	// Input is the payload the instance was started with.
	Input json.RawMessage

	// Result is set on terminal transition (Completed or TimedOut).
	Result json.RawMessage

	// FailureKind and FailureMessage are set when Status is FAILED.
	// Together with LastSequence they are sufficient to diagnose a
	// failed instance without access to private engine state.
	FailureKind    FailureKind
	FailureMessage string

	// LastSequence is the sequence number of the last history event
	// successfully committed for this instance.
	LastSequence int64

	// ParentID and ParentTaskID link a sub-orchestration back to the
	// awaiting task in its parent. Empty for top-level instances.
	ParentID     string
	ParentTaskID int64

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// Terminal reports whether the instance has reached a final status.
func (i *WorkflowInstance) Terminal() bool {
	return i.Status.Terminal()
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// Type, if non-empty, limits results to instances of the given
	// orchestration.
	Type string

	// Status, if non-empty, limits results to instances with the given status.
	Status Status
}
