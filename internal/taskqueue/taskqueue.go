package taskqueue

import (
	"context"
	"encoding/json"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeResume asks a worker to run one turn of the replay
	// executor for an instance.
	TaskTypeResume TaskType = "resume"

	// TaskTypeActivity asks a worker to execute a scheduled activity and
	// record its result.
	TaskTypeActivity TaskType = "activity"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// InstanceID is set for all task types.
	InstanceID string

	// For activity tasks.
	TaskID   int64
	Activity string
	Args     json.RawMessage

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until
	// one is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
