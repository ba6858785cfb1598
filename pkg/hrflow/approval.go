package hrflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/turno/pkg/api"
)

// Approval decision values.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionTimedOut = "timed_out"
)

// ApprovalRequest starts an approval-flow instance.
type ApprovalRequest struct {
	ApprovalID    string   `json:"approval_id"`
	EmployeeID    string   `json:"employee_id,omitempty"`
	RequestType   string   `json:"request_type,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	ApproverChain []string `json:"approver_chain"`

	// SLAHours overrides the default per-hop escalation window.
	SLAHours int `json:"sla_hours,omitempty"`
}

// ApprovalResponse is the payload of the ApprovalResponse external event.
type ApprovalResponse struct {
	Decision string `json:"decision"`
	Approver string `json:"approver,omitempty"`
	Comments string `json:"comments,omitempty"`
}

// ApprovalResult is the terminal result of an approval-flow instance.
type ApprovalResult struct {
	Status     string `json:"status"`
	ApprovalID string `json:"approval_id"`
	Approver   string `json:"approver,omitempty"`
}

// ApprovalFlow waits for a human approval decision with escalation.
//
// The request is stored and the first approver in the chain notified,
// then the instance suspends racing the ApprovalResponse event against
// the per-hop SLA timer. A response wins: the timer is canceled and the
// decision recorded. The timer wins: the flow escalates by recursing
// into a child instance seeded with the remaining chain, so each hop
// gets its own crash-isolated history. An exhausted chain ends the
// instance with a timed_out result.
func (d *Definitions) ApprovalFlow(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var req ApprovalRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("decode approval request: %w", err)
	}
	if len(req.ApproverChain) == 0 {
		return nil, errors.New("approver chain is empty")
	}

	sla := d.params.ApprovalSLA
	if req.SLAHours > 0 {
		sla = time.Duration(req.SLAHours) * time.Hour
	}

	if err := ctx.ScheduleActivity(ActivityStoreApprovalRequest, req).Get(nil); err != nil {
		return nil, err
	}
	if err := ctx.ScheduleActivity(ActivitySendApprovalNotification, map[string]string{
		"approval_id": req.ApprovalID,
		"approver":    req.ApproverChain[0],
	}).Get(nil); err != nil {
		return nil, err
	}

	response := ctx.WaitForEvent(EventApprovalResponse)
	slaTimer := ctx.CreateTimer(sla)

	if ctx.Any(response, slaTimer) == 1 {
		return d.escalate(ctx, req)
	}

	slaTimer.Cancel()

	var decision ApprovalResponse
	if err := response.Get(&decision); err != nil {
		return nil, err
	}
	if decision.Decision == "" {
		decision.Decision = "unknown"
	}

	if err := ctx.ScheduleActivity(ActivityRecordDecision, map[string]string{
		"approval_id": req.ApprovalID,
		"decision":    decision.Decision,
		"approver":    decision.Approver,
		"comments":    decision.Comments,
	}).Get(nil); err != nil {
		return nil, err
	}

	return ApprovalResult{
		Status:     decision.Decision,
		ApprovalID: req.ApprovalID,
		Approver:   decision.Approver,
	}, nil
}

// escalate handles the SLA-breach branch: hand the request to the next
// approver via a child instance, or finish timed out when none remain.
func (d *Definitions) escalate(ctx api.OrchestrationContext, req ApprovalRequest) (any, error) {
	if len(req.ApproverChain) <= 1 {
		if err := ctx.ScheduleActivity(ActivityRecordDecision, map[string]string{
			"approval_id": req.ApprovalID,
			"decision":    DecisionTimedOut,
		}).Get(nil); err != nil {
			return nil, err
		}
		return nil, api.TimedOut(ApprovalResult{
			Status:     DecisionTimedOut,
			ApprovalID: req.ApprovalID,
		})
	}

	if err := ctx.ScheduleActivity(ActivityEscalateToNextApprover, map[string]string{
		"approval_id":   req.ApprovalID,
		"next_approver": req.ApproverChain[1],
	}).Get(nil); err != nil {
		return nil, err
	}

	next := req
	next.ApproverChain = req.ApproverChain[1:]
	// Every hop must consume an approver; a chain that stops shrinking
	// would recurse without bound.
	if len(next.ApproverChain) >= len(req.ApproverChain) {
		return nil, errors.New("escalation chain did not shrink")
	}

	var res ApprovalResult
	if err := ctx.StartSubOrchestration(TypeApprovalFlow, next).Get(&res); err != nil {
		return nil, err
	}
	if res.Status == DecisionTimedOut {
		return nil, api.TimedOut(res)
	}
	return res, nil
}
