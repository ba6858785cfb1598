package turno

import (
	"database/sql"

	"github.com/benbjohnson/clock"

	"github.com/petrijr/turno/internal/engine"
	"github.com/petrijr/turno/internal/persistence"
	"github.com/petrijr/turno/internal/taskqueue"
	"github.com/petrijr/turno/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	WorkflowInstance     = api.WorkflowInstance
	InstanceListOptions  = api.InstanceListOptions
	HistoryEvent         = api.HistoryEvent
	EventKind            = api.EventKind
	Status               = api.Status
	FailureKind          = api.FailureKind
	OrchestrationContext = api.OrchestrationContext
	OrchestratorFunc     = api.OrchestratorFunc
	ActivityFunc         = api.ActivityFunc
	ActivityDefinition   = api.ActivityDefinition
	RetryPolicy          = api.RetryPolicy
	Future               = api.Future
	TimerFuture          = api.TimerFuture
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	WithInstanceID       = api.WithInstanceID
	TimedOut             = api.TimedOut
	Permanent            = api.Permanent
)

// Re-export status values for convenience.

const (
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCanceled  = api.StatusCanceled
	StatusTimedOut  = api.StatusTimedOut
)

// Config mirrors the internal engine configuration for callers that wire
// their own stores, queue, clock, or observer.
type Config struct {
	Persistence persistence.Persistence
	Queue       taskqueue.Queue
	Clock       clock.Clock
	Observer    api.Observer
}

// Engine constructors. These wrap the internal/engine package so external
// callers never need to import internal packages.

// NewEngine builds an Engine from the given configuration.
func NewEngine(cfg Config) (Engine, error) {
	return engine.New(engine.Config{
		Persistence: cfg.Persistence,
		Queue:       cfg.Queue,
		Clock:       cfg.Clock,
		Observer:    cfg.Observer,
	})
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory
// stores and an in-memory queue. Non-durable; intended for tests and
// local development.
func NewInMemoryEngine() Engine {
	return NewInMemoryEngineWithObserver(nil)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the
// given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	eng, err := engine.New(engine.Config{
		Persistence: newInMemoryPersistence(),
		Queue:       taskqueue.NewInMemoryQueue(1024),
		Observer:    obs,
	})
	if err != nil {
		// Only reachable through a programming error in this package.
		panic(err)
	}
	return eng
}

func newInMemoryPersistence() persistence.Persistence {
	store := persistence.NewInMemoryStore()
	return persistence.Persistence{Instances: store, History: store}
}

// NewSQLiteEngine returns an Engine with history, instances, and the
// task queue durably stored in the given SQLite database.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the
// given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		Persistence: persistence.Persistence{Instances: store, History: store},
		Queue:       queue,
		Observer:    obs,
	})
}

// NewPostgresEngine returns an Engine with instances and history stored
// in Postgres. The caller supplies an *sql.DB opened with a Postgres
// driver; tasks are queued in-process.
func NewPostgresEngine(db *sql.DB, obs Observer) (Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		Persistence: persistence.Persistence{Instances: store, History: store},
		Queue:       taskqueue.NewInMemoryQueue(1024),
		Observer:    obs,
	})
}
