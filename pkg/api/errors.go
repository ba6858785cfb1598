package api

import (
	"errors"
	"fmt"
)

var (
	// ErrInstanceNotFound is returned when no instance exists for an ID.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrDuplicateInstanceID is returned by Start when the requested ID
	// belongs to an active, non-terminal instance.
	ErrDuplicateInstanceID = errors.New("duplicate instance id")

	// ErrInstanceNotWaiting is returned when an external event is raised
	// against a terminal instance. Events raised against a running
	// instance are never an error: they are buffered until a matching
	// wait is reached.
	ErrInstanceNotWaiting = errors.New("instance not waiting")

	// ErrConcurrentAppendConflict is returned by the history store when
	// the caller's expected version no longer matches the stream. The
	// caller re-reads history and retries its turn.
	ErrConcurrentAppendConflict = errors.New("concurrent append conflict")

	// ErrUnknownOrchestration is returned when no definition is
	// registered for the requested type.
	ErrUnknownOrchestration = errors.New("unknown orchestration")

	// ErrUnknownActivity is returned when an activity task references a
	// name with no registered implementation.
	ErrUnknownActivity = errors.New("unknown activity")
)

// NonDeterminismError reports that a resumed orchestration body attempted
// a scheduling decision different from the one recorded in history at the
// same position. The instance is failed and never silently repaired.
type NonDeterminismError struct {
	InstanceID string
	Sequence   int64
	Recorded   string
	Attempted  string
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("non-determinism in instance %s at sequence %d: history recorded %s, body attempted %s",
		e.InstanceID, e.Sequence, e.Recorded, e.Attempted)
}

// IsNonDeterminism reports whether err is a NonDeterminismError.
func IsNonDeterminism(err error) bool {
	var nd *NonDeterminismError
	return errors.As(err, &nd)
}

// TaskFailedError is returned from Future.Get when the awaited activity or
// sub-orchestration failed permanently. It is an ordinary result the
// orchestration body can branch on, not an engine-level fault.
type TaskFailedError struct {
	TaskID  int64
	Name    string
	Message string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %d (%s) failed: %s", e.TaskID, e.Name, e.Message)
}

// AsTaskFailed returns the TaskFailedError wrapped in err, if any.
func AsTaskFailed(err error) (*TaskFailedError, bool) {
	var tf *TaskFailedError
	if errors.As(err, &tf) {
		return tf, true
	}
	return nil, false
}

// TimedOutError is returned by an orchestration body to finish the
// instance with StatusTimedOut instead of StatusFailed. Result, if
// non-nil, becomes the instance result.
type TimedOutError struct {
	Result any
}

func (e *TimedOutError) Error() string {
	return "orchestration timed out"
}

// TimedOut builds a TimedOutError carrying the given terminal result.
func TimedOut(result any) error {
	return &TimedOutError{Result: result}
}

// AsTimedOut returns the TimedOutError wrapped in err, if any.
func AsTimedOut(err error) (*TimedOutError, bool) {
	var to *TimedOutError
	if errors.As(err, &to) {
		return to, true
	}
	return nil, false
}
