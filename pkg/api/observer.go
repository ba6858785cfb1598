package api

import (
	"context"
	"log/slog"
	"time"
)

// Observer receives callbacks from the workflow engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution.
type Observer interface {
	// OnOrchestrationStart is called once when an instance is first
	// started, before its first turn.
	OnOrchestrationStart(ctx context.Context, inst *WorkflowInstance)

	// OnOrchestrationFinished is called when an instance reaches any
	// terminal status (Completed, Failed, Canceled, TimedOut).
	OnOrchestrationFinished(ctx context.Context, inst *WorkflowInstance)

	// OnTurnCompleted is called after each turn of the replay executor.
	// newEvents is the number of history events the turn committed.
	OnTurnCompleted(ctx context.Context, inst *WorkflowInstance, newEvents int, duration time.Duration)

	// OnActivityStart is called before an activity attempt.
	OnActivityStart(ctx context.Context, instanceID string, taskID int64, name string)

	// OnActivityCompleted is called after an activity finishes, for both
	// successes and failures (err != nil), with the total duration across
	// retries.
	OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, duration time.Duration)

	// OnTimerFired is called when a durable timer fires and its
	// TimerFired event is committed.
	OnTimerFired(ctx context.Context, instanceID string, timerID int64)

	// OnExternalEvent is called when an external event is durably
	// recorded for an instance.
	OnExternalEvent(ctx context.Context, instanceID string, name string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnOrchestrationStart(ctx context.Context, inst *WorkflowInstance)    {}
func (NoopObserver) OnOrchestrationFinished(ctx context.Context, inst *WorkflowInstance) {}
func (NoopObserver) OnTurnCompleted(ctx context.Context, inst *WorkflowInstance, newEvents int, d time.Duration) {
}
func (NoopObserver) OnActivityStart(ctx context.Context, instanceID string, taskID int64, name string) {
}
func (NoopObserver) OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, d time.Duration) {
}
func (NoopObserver) OnTimerFired(ctx context.Context, instanceID string, timerID int64) {}
func (NoopObserver) OnExternalEvent(ctx context.Context, instanceID string, name string) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnOrchestrationStart(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnOrchestrationStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnOrchestrationFinished(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnOrchestrationFinished(ctx, inst)
	}
}

func (c *CompositeObserver) OnTurnCompleted(ctx context.Context, inst *WorkflowInstance, newEvents int, d time.Duration) {
	for _, o := range c.observers {
		o.OnTurnCompleted(ctx, inst, newEvents, d)
	}
}

func (c *CompositeObserver) OnActivityStart(ctx context.Context, instanceID string, taskID int64, name string) {
	for _, o := range c.observers {
		o.OnActivityStart(ctx, instanceID, taskID, name)
	}
}

func (c *CompositeObserver) OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActivityCompleted(ctx, instanceID, taskID, name, err, d)
	}
}

func (c *CompositeObserver) OnTimerFired(ctx context.Context, instanceID string, timerID int64) {
	for _, o := range c.observers {
		o.OnTimerFired(ctx, instanceID, timerID)
	}
}

func (c *CompositeObserver) OnExternalEvent(ctx context.Context, instanceID string, name string) {
	for _, o := range c.observers {
		o.OnExternalEvent(ctx, instanceID, name)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs orchestration lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnOrchestrationStart(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "orchestration_start",
		slog.String("type", inst.Type),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnOrchestrationFinished(ctx context.Context, inst *WorkflowInstance) {
	attrs := []any{
		slog.String("type", inst.Type),
		slog.String("instance_id", inst.ID),
		slog.String("status", string(inst.Status)),
	}
	if inst.Status == StatusFailed {
		attrs = append(attrs,
			slog.String("failure_kind", string(inst.FailureKind)),
			slog.String("failure", inst.FailureMessage),
			slog.Int64("last_sequence", inst.LastSequence),
		)
		o.Logger.ErrorContext(ctx, "orchestration_failed", attrs...)
		return
	}
	o.Logger.InfoContext(ctx, "orchestration_finished", attrs...)
}

func (o *LoggingObserver) OnTurnCompleted(ctx context.Context, inst *WorkflowInstance, newEvents int, d time.Duration) {
	o.Logger.DebugContext(ctx, "turn_completed",
		slog.String("instance_id", inst.ID),
		slog.Int("new_events", newEvents),
		slog.Int64("last_sequence", inst.LastSequence),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnActivityStart(ctx context.Context, instanceID string, taskID int64, name string) {
	o.Logger.DebugContext(ctx, "activity_start",
		slog.String("instance_id", instanceID),
		slog.Int64("task_id", taskID),
		slog.String("activity", name),
	)
}

func (o *LoggingObserver) OnActivityCompleted(ctx context.Context, instanceID string, taskID int64, name string, err error, d time.Duration) {
	if err != nil {
		o.Logger.WarnContext(ctx, "activity_failed",
			slog.String("instance_id", instanceID),
			slog.Int64("task_id", taskID),
			slog.String("activity", name),
			slog.String("error", err.Error()),
			slog.Duration("duration", d),
		)
		return
	}
	o.Logger.DebugContext(ctx, "activity_completed",
		slog.String("instance_id", instanceID),
		slog.Int64("task_id", taskID),
		slog.String("activity", name),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnTimerFired(ctx context.Context, instanceID string, timerID int64) {
	o.Logger.DebugContext(ctx, "timer_fired",
		slog.String("instance_id", instanceID),
		slog.Int64("timer_id", timerID),
	)
}

func (o *LoggingObserver) OnExternalEvent(ctx context.Context, instanceID string, name string) {
	o.Logger.InfoContext(ctx, "external_event",
		slog.String("instance_id", instanceID),
		slog.String("event", name),
	)
}
