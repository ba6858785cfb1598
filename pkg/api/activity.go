package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ActivityFunc is an external-collaborator capability invoked by the
// activity executor, outside the deterministic orchestration body.
//
// Activities may be slow, may perform real I/O, and may fail transiently;
// transient failures are retried per the configured RetryPolicy. The
// engine guarantees at-least-once execution, so side-effecting activities
// must be idempotent with respect to their (instanceID, taskID) identity.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (any, error)

// ActivityDefinition binds an activity name to its implementation and an
// optional per-activity retry policy overriding the engine default.
type ActivityDefinition struct {
	Name  string
	Fn    ActivityFunc
	Retry *RetryPolicy
}

// RetryPolicy controls how an activity is retried when it returns a
// transient error. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// InitialBackoff is the delay before the first retry; each subsequent
// delay is multiplied by BackoffMultiplier (default 2.0) and capped at
// MaxBackoff when set.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// permanentError marks an activity error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the activity executor records an ActivityFailed
// immediately instead of retrying. Errors not wrapped with Permanent are
// treated as transient.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
