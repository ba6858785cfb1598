package api

import (
	"context"
	"encoding/json"
)

// StartOptions collects optional Start parameters.
type StartOptions struct {
	// InstanceID is the caller-assigned instance ID. When empty the
	// engine generates one. Reusing the ID of an active, non-terminal
	// instance fails with ErrDuplicateInstanceID; a terminal instance's
	// ID may be reused, replacing it.
	InstanceID string
}

// StartOption mutates StartOptions.
type StartOption func(*StartOptions)

// WithInstanceID sets a caller-assigned instance ID.
func WithInstanceID(id string) StartOption {
	return func(o *StartOptions) { o.InstanceID = id }
}

// Engine hosts orchestration instances: it persists their history,
// replays them deterministically, and completes their awaited activities,
// timers, and external events.
type Engine interface {
	// RegisterOrchestration registers a definition under the given type name.
	RegisterOrchestration(name string, fn OrchestratorFunc) error

	// RegisterActivity registers an activity implementation by name.
	RegisterActivity(def ActivityDefinition) error

	// Start creates a new instance of the named orchestration and
	// enqueues its first turn. input is marshaled to JSON.
	Start(ctx context.Context, orchestration string, input any, opts ...StartOption) (string, error)

	// RaiseEvent durably records a named external event for an instance.
	// If the instance is not currently waiting for the name, the event is
	// buffered and matched against a future wait. Raising against a
	// terminal instance returns ErrInstanceNotWaiting.
	RaiseEvent(ctx context.Context, instanceID, name string, payload any) error

	// GetInstance looks up an instance by ID.
	GetInstance(ctx context.Context, id string) (*WorkflowInstance, error)

	// GetHistory returns the full ordered history stream of an instance.
	GetHistory(ctx context.Context, id string) ([]HistoryEvent, error)

	// ListInstances returns instances matching the given options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*WorkflowInstance, error)

	// Cancel marks a running instance Canceled. Terminal states are
	// final: canceling a terminal instance is a no-op, and any pending
	// timer fire or event delivery after cancellation is ignored.
	Cancel(ctx context.Context, id, reason string) error

	// WaitForInstance blocks until the instance reaches a terminal
	// status or ctx is done.
	WaitForInstance(ctx context.Context, id string) (*WorkflowInstance, error)

	// ResumeInstance runs one turn of the replay executor for an
	// instance. Concurrent resumes for the same instance serialize;
	// resumes for different instances are independent. Workers call this
	// for resume tasks; application code normally does not.
	ResumeInstance(ctx context.Context, id string) (*WorkflowInstance, error)

	// ExecuteActivity runs a scheduled activity with retry policy and
	// records its terminal result. Workers call this for activity tasks.
	ExecuteActivity(ctx context.Context, instanceID string, taskID int64, name string, args json.RawMessage) error

	// Rehydrate scans running instances after a process restart,
	// recreates their outstanding timers, re-enqueues their unfinished
	// activities, and enqueues a resume for each. It returns the number
	// of instances rehydrated and is intended to be called on startup
	// before workers begin processing.
	Rehydrate(ctx context.Context) (int, error)
}
