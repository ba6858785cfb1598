package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/turno/pkg/api"
)

// turnResult is the outcome of replaying an orchestration body over its
// history once.
type turnResult struct {
	// events to append to the instance's history, in order.
	events []api.HistoryEvent

	// status after the turn. StatusRunning means the body suspended on an
	// unresolved await.
	status api.Status

	result         json.RawMessage
	failureKind    api.FailureKind
	failureMessage string
}

// runTurn replays fn over history. It never blocks: the body either runs
// to a return, suspends at its first unresolved await, or fails.
func runTurn(instanceID string, fn api.OrchestratorFunc, input json.RawMessage, history []api.HistoryEvent, wallNow time.Time) (res turnResult) {
	c := newExecContext(instanceID, history, wallNow)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch sig := r.(type) {
		case suspendSignal:
			res = turnResult{events: c.newEvents, status: api.StatusRunning}
		case ndSignal:
			// Divergent decisions are not committed; only the failure is.
			res = failedTurn(c, api.FailureNonDeterminism, sig.err.Error())
		default:
			res = failedTurn(c, api.FailurePanic, fmt.Sprintf("orchestration panic: %v", r))
		}
	}()

	out, err := fn(c, input)
	if err != nil {
		var toErr *api.TimedOutError
		if errors.As(err, &toErr) {
			payload, merr := json.Marshal(toErr.Result)
			if merr != nil {
				return failedTurn(c, api.FailureOrchestration, fmt.Sprintf("unmarshalable timeout result: %v", merr))
			}
			c.appendEvent(api.EventOrchestratorTimedOut, payload)
			return turnResult{events: c.newEvents, status: api.StatusTimedOut, result: payload}
		}
		return failedTurn(c, api.FailureOrchestration, err.Error())
	}

	payload, merr := json.Marshal(out)
	if merr != nil {
		return failedTurn(c, api.FailureOrchestration, fmt.Sprintf("unmarshalable result: %v", merr))
	}
	c.appendEvent(api.EventOrchestratorCompleted, payload)
	return turnResult{events: c.newEvents, status: api.StatusCompleted, result: payload}
}

// failedTurn discards any decisions made this turn and records only the
// terminal failure event.
func failedTurn(c *execContext, kind api.FailureKind, msg string) turnResult {
	c.newEvents = nil
	payload, _ := json.Marshal(msg)
	c.appendEvent(api.EventOrchestratorFailed, payload)
	return turnResult{
		events:         c.newEvents,
		status:         api.StatusFailed,
		failureKind:    kind,
		failureMessage: msg,
	}
}
