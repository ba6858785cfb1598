// Package turno provides a durable, deterministic-replay workflow engine
// for Go.
//
// Turno hosts long-running orchestrations that survive process crashes:
// approval chains that escalate on SLA breach, trackers that poll an
// external system until it reaches a terminal state, and timed
// notification sequences. It runs fully in Go, supports multiple
// persistence backends, and embeds cleanly into existing services.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Orchestration definitions
//  3. Activities
//  4. Worker
//  5. LocalRunner
//
// # Engine
//
// The Engine persists each instance's history as an ordered, append-only
// event stream and re-executes the orchestration body over that stream
// on every turn. The stream is the single source of truth: after a
// crash, replaying it reconstructs the instance exactly, including which
// awaits are resolved and which timers are outstanding. Bodies must be
// deterministic; a body whose scheduling decisions diverge from recorded
// history fails the instance rather than silently repairing it.
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis (separate submodule)
//
// # Orchestration definitions
//
// A definition is a plain Go function written against
// api.OrchestrationContext. It schedules activities, creates durable
// timers, waits for named external events, races awaits with Any, and
// starts sub-orchestrations. Each primitive returns a Future; Get
// suspends the instance until the awaited result is recorded.
//
// # Activities
//
// Activities are the only place real I/O happens. They run out-of-band
// with at-least-once semantics and per-activity retry policies; their
// results are recorded in history and delivered to the body's futures.
//
// # Worker and LocalRunner
//
// Workers drain the task queue, running replay turns and activities.
// LocalRunner bundles an in-memory engine, queue, and worker pool for
// development and tests; cmd/turnod serves the same engine over HTTP.
//
// See the examples directory and the pkg/hrflow package for complete
// orchestration definitions.
package turno
