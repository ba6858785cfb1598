package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/petrijr/turno/internal/taskqueue"
	"github.com/petrijr/turno/pkg/api"
)

// Worker pulls tasks from a Queue and executes them against an Engine.
//
// Resume tasks run one turn of the replay executor; activity tasks invoke
// the registered activity function and record its result. Multiple
// workers can safely share one queue: turns for the same instance
// serialize inside the engine, and activity completions are idempotent.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	logger *slog.Logger
}

// New creates a Worker. If logger is nil, slog.Default() is used.
func New(engine api.Engine, queue taskqueue.Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{engine: engine, queue: queue, logger: logger}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx cancelled or dequeue error)
//   - processed == true: a task was processed; err reports handler failure.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeResume:
		_, err := w.engine.ResumeInstance(ctx, task.InstanceID)
		if errors.Is(err, api.ErrInstanceNotFound) {
			// The instance was replaced or deleted after the task was
			// enqueued; nothing to do.
			return true, nil
		}
		return true, err

	case taskqueue.TaskTypeActivity:
		err := w.engine.ExecuteActivity(ctx, task.InstanceID, task.TaskID, task.Activity, task.Args)
		return true, err

	default:
		return true, fmt.Errorf("unknown task type: %s", task.Type)
	}
}

// Run processes tasks until ctx is cancelled. Handler errors are logged
// and do not stop the loop.
func (w *Worker) Run(ctx context.Context) {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && processed {
			w.logger.Error("task failed", slog.String("error", err.Error()))
		}
	}
}

// Pool runs n workers over the same queue until ctx is cancelled and
// blocks until all of them have stopped.
func Pool(ctx context.Context, n int, engine api.Engine, queue taskqueue.Queue, logger *slog.Logger) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		w := New(engine, queue, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	wg.Wait()
}
