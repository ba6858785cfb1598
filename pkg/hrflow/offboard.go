package hrflow

import (
	"encoding/json"
	"fmt"

	"github.com/petrijr/turno/pkg/api"
)

// AssetReturn sends a shipping label and polls the return ticket daily
// for fourteen days. Received assets are processed; an expired window
// ends the instance with an overdue result.
func (d *Definitions) AssetReturn(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in TicketInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode ticket input: %w", err)
	}

	if err := ctx.ScheduleActivity(ActivitySendShippingLabel, in).Get(nil); err != nil {
		return nil, err
	}

	_, expired, err := pollUntilTerminal(ctx, pollPlan{
		activity: ActivityPollAssetReturn,
		interval: AssetReturnPollInterval,
		expiry:   AssetReturnPollExpiry,
		terminal: oneOf("received"),
	}, in.TicketID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, api.TimedOut(TicketResult{TicketID: in.TicketID, Result: "overdue"})
	}

	if err := ctx.ScheduleActivity(ActivityProcessReturnedAssets, in).Get(nil); err != nil {
		return nil, err
	}
	return TicketResult{TicketID: in.TicketID, Result: "received"}, nil
}

// EmployeeInput starts the payroll and benefits flows.
type EmployeeInput struct {
	EmployeeID string `json:"employee_id"`
	LastDay    string `json:"last_day,omitempty"`
}

// BenefitsTermination runs the COBRA notification timeline: the initial
// election notice, a reminder at day 44, then a race between the
// employee's election response and the day-60 deadline.
func (d *Definitions) BenefitsTermination(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in EmployeeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode employee input: %w", err)
	}

	if err := ctx.ScheduleActivity(ActivitySendCobraNotice, in).Get(nil); err != nil {
		return nil, err
	}
	if err := ctx.CreateTimer(CobraReminderDelay).Get(nil); err != nil {
		return nil, err
	}
	if err := ctx.ScheduleActivity(ActivitySendCobraReminder, in).Get(nil); err != nil {
		return nil, err
	}

	election := ctx.WaitForEvent(EventCobraElectionResponse)
	deadline := ctx.CreateTimer(CobraElectionWindow)

	if ctx.Any(election, deadline) == 1 {
		return nil, api.TimedOut(map[string]string{
			"employee_id": in.EmployeeID,
			"cobra":       "election_expired",
		})
	}

	deadline.Cancel()
	var choice json.RawMessage
	if err := election.Get(&choice); err != nil {
		return nil, err
	}
	return map[string]json.RawMessage{
		"employee_id": json.RawMessage(fmt.Sprintf("%q", in.EmployeeID)),
		"cobra":       choice,
	}, nil
}

// PaycheckResult is the terminal result of a final-paycheck instance.
type PaycheckResult struct {
	EmployeeID string `json:"employee_id"`
	Status     string `json:"status"`
}

// FinalPaycheck calculates final amounts, requests payroll manager
// approval, and races the PayrollApproval event against a 48 hour
// deadline. Approval schedules the disbursement; rejection and timeout
// end the instance without one.
func (d *Definitions) FinalPaycheck(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in EmployeeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode employee input: %w", err)
	}

	var calculation json.RawMessage
	if err := ctx.ScheduleActivity(ActivityCalculateFinalAmounts, in).Get(&calculation); err != nil {
		return nil, err
	}

	if err := ctx.ScheduleActivity(ActivityRequestPayrollApproval, map[string]json.RawMessage{
		"employee_id": json.RawMessage(fmt.Sprintf("%q", in.EmployeeID)),
		"calculation": calculation,
	}).Get(nil); err != nil {
		return nil, err
	}

	approval := ctx.WaitForEvent(EventPayrollApproval)
	deadline := ctx.CreateTimer(PaycheckApprovalSLA)

	if ctx.Any(approval, deadline) == 1 {
		return nil, api.TimedOut(PaycheckResult{
			EmployeeID: in.EmployeeID,
			Status:     "approval_timed_out",
		})
	}

	deadline.Cancel()
	var decision ApprovalResponse
	if err := approval.Get(&decision); err != nil {
		return nil, err
	}
	if decision.Decision != DecisionApproved {
		return PaycheckResult{EmployeeID: in.EmployeeID, Status: DecisionRejected}, nil
	}

	if err := ctx.ScheduleActivity(ActivityScheduleDisbursement, map[string]json.RawMessage{
		"employee_id": json.RawMessage(fmt.Sprintf("%q", in.EmployeeID)),
		"calculation": calculation,
	}).Get(nil); err != nil {
		return nil, err
	}
	return PaycheckResult{EmployeeID: in.EmployeeID, Status: "disbursement_scheduled"}, nil
}

// TaxDocument generates the departing employee's tax documents and
// delivers them.
func (d *Definitions) TaxDocument(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in EmployeeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode employee input: %w", err)
	}

	if err := ctx.ScheduleActivity(ActivityGenerateTaxDocument, in).Get(nil); err != nil {
		return nil, err
	}
	if err := ctx.ScheduleActivity(ActivityDeliverTaxDocument, in).Get(nil); err != nil {
		return nil, err
	}
	return map[string]string{"employee_id": in.EmployeeID, "status": "delivered"}, nil
}
