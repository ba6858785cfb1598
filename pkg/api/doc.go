// Package api defines the public types of the turno workflow engine: the
// instance and history event model, the orchestration context that
// definitions are written against, the activity and retry types, the
// error taxonomy, and the Observer interface for logging and metrics.
//
// Application code usually imports the root turno package, which
// re-exports everything here.
package api
