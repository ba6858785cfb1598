// Package worker provides the background worker implementation used to
// drive turno orchestrations forward.
//
// Workers consume tasks from a task queue and execute them against an
// engine. There are two kinds of task: resume tasks, which run one turn
// of the deterministic replay executor for an instance, and activity
// tasks, which invoke a registered activity function and durably record
// its result.
//
// Workers are long-lived components that typically run in dedicated
// goroutines. Multiple workers can safely operate on the same queue: the
// engine serializes turns per instance and deduplicates activity
// completions, so scaling out workers never corrupts history.
//
// Most applications construct workers via the LocalRunner in the turno
// package, which wires the engine, queue, and worker pool together with
// sensible defaults. This package is useful when embedding workers in an
// existing process layout or driving the queue manually in tests.
package worker
