package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/turno/pkg/api"
)

var (
	// ErrInstanceNotFound is returned when a workflow instance is not found.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrDuplicateInstance is returned by CreateInstance when the ID is
	// already in use.
	ErrDuplicateInstance = errors.New("instance already exists")

	// ErrConflict is returned by AppendEvents when the caller's expected
	// version no longer matches the stream (optimistic concurrency).
	ErrConflict = errors.New("history version conflict")
)

// InstanceStore handles storage of workflow instances.
type InstanceStore interface {
	// CreateInstance persists a new instance. It fails with
	// ErrDuplicateInstance if the ID is already present.
	CreateInstance(ctx context.Context, inst *api.WorkflowInstance) error

	// UpdateInstance overwrites an existing instance's mutable fields.
	UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error

	// GetInstance returns the instance with the given ID.
	GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error)

	// ListInstances returns instances matching the filter.
	ListInstances(ctx context.Context, filter api.InstanceListOptions) ([]*api.WorkflowInstance, error)

	// DeleteInstance removes an instance row. It is a no-op if the ID is
	// unknown. The engine uses it when a terminal instance ID is reused.
	DeleteInstance(ctx context.Context, id string) error
}

// HistoryStore is the append-only history log, the source of truth for
// replay. Events for one instance are totally ordered by sequence number.
type HistoryStore interface {
	// AppendEvents atomically appends events to an instance's stream.
	// expectedVersion must equal the current number of events in the
	// stream; otherwise ErrConflict is returned and nothing is written.
	// Sequence numbers on the events must already be assigned
	// contiguously starting at expectedVersion+1.
	//
	// The write must be durable before the caller treats the decisions
	// as committed ("log before acknowledge").
	AppendEvents(ctx context.Context, instanceID string, expectedVersion int64, events []api.HistoryEvent) error

	// ReadHistory returns the full ordered stream for an instance.
	// An unknown instance yields an empty stream, not an error.
	ReadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error)

	// DeleteHistory removes an instance's stream. No-op if unknown.
	DeleteHistory(ctx context.Context, instanceID string) error
}

// Persistence bundles the store interfaces so the engine can depend on a
// single abstraction.
type Persistence struct {
	Instances InstanceStore
	History   HistoryStore
}
