package hrflow

import (
	"time"

	"github.com/petrijr/turno/pkg/api"
)

// pollPlan parameterizes the poll-until-terminal loop shared by the
// fulfillment trackers.
type pollPlan struct {
	activity string
	interval time.Duration
	expiry   time.Duration
	terminal func(status string) bool
}

// pollUntilTerminal schedules the poll activity repeatedly, sleeping
// plan.interval between polls, until the returned status is terminal or
// the overall expiry window closes. expired is true when the window
// closed first; status is then empty.
//
// The expiry check uses orchestration time, so the loop replays
// identically and the whole window can be driven by a mock clock.
func pollUntilTerminal(ctx api.OrchestrationContext, plan pollPlan, args any) (status string, expired bool, err error) {
	deadline := ctx.CurrentTime().Add(plan.expiry)

	for ctx.CurrentTime().Before(deadline) {
		if err := ctx.ScheduleActivity(plan.activity, args).Get(&status); err != nil {
			return "", false, err
		}
		if plan.terminal(status) {
			return status, false, nil
		}
		if err := ctx.CreateTimer(plan.interval).Get(nil); err != nil {
			return "", false, err
		}
	}
	return "", true, nil
}

func oneOf(values ...string) func(string) bool {
	return func(status string) bool {
		for _, v := range values {
			if status == v {
				return true
			}
		}
		return false
	}
}
