package turno

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/turno/internal/taskqueue"
	"github.com/petrijr/turno/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and
// a Worker pool to provide a simple local runner for development and
// tests.
//
// Typical usage:
//
//	runner := turno.NewLocalRunner()
//	defs := hrflow.New(hrflow.Params{})
//	_ = defs.Register(runner.Engine)
//	_ = hrflow.RegisterSimulatedActivities(runner.Engine)
//
//	_ = runner.StartWorkers(ctx, 2)
//	id, _ := runner.Engine.Start(ctx, hrflow.TypeTaxDocument, input)
//	inst, _ := runner.Engine.WaitForInstance(ctx, id)
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory workflow engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the workers.
	Queue taskqueue.Queue

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine
// and queue.
func NewLocalRunner() *LocalRunner {
	return NewLocalRunnerWithObserver(nil)
}

// NewLocalRunnerWithObserver constructs a LocalRunner whose engine
// reports lifecycle events to the given Observer.
func NewLocalRunnerWithObserver(obs Observer) *LocalRunner {
	q := taskqueue.NewInMemoryQueue(1024)
	store := newInMemoryPersistence()
	eng, err := NewEngine(Config{Persistence: store, Queue: q, Observer: obs})
	if err != nil {
		panic(err)
	}
	return &LocalRunner{Engine: eng, Queue: q}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously
// process tasks until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an
// error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("turno: LocalRunner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		w := worker.New(r.Engine, r.Queue, slog.Default())
		go func() {
			defer r.wg.Done()
			w.Run(ctx)
		}()
	}
	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
