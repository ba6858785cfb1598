package hrflow

import (
	"encoding/json"
	"fmt"

	"github.com/petrijr/turno/pkg/api"
)

// TicketInput starts the ServiceNow-backed trackers.
type TicketInput struct {
	TicketID   string `json:"ticket_id"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// TicketResult is the terminal result of a ticket tracker.
type TicketResult struct {
	TicketID string `json:"ticket_id"`
	Result   string `json:"result"`
}

// LaptopProvision tracks a ServiceNow laptop fulfillment ticket until it
// is fulfilled or cancelled, polling every six hours for up to ten days.
func (d *Definitions) LaptopProvision(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in TicketInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode ticket input: %w", err)
	}

	status, expired, err := pollUntilTerminal(ctx, pollPlan{
		activity: ActivityPollServiceNowTicket,
		interval: LaptopPollInterval,
		expiry:   LaptopPollExpiry,
		terminal: oneOf("fulfilled", "cancelled"),
	}, in.TicketID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, api.TimedOut(TicketResult{TicketID: in.TicketID, Result: "timed_out"})
	}
	return TicketResult{TicketID: in.TicketID, Result: status}, nil
}

// BadgeInput starts a badge-provision instance.
type BadgeInput struct {
	BadgeID    string `json:"badge_id"`
	EmployeeID string `json:"employee_id,omitempty"`
	Site       string `json:"site,omitempty"`
}

// BadgeResult is the terminal result of a badge-provision instance.
type BadgeResult struct {
	BadgeID string `json:"badge_id"`
	Result  string `json:"result"`
}

// BadgeProvision requests badge printing, polls the print queue every
// four hours for up to five days, and activates the badge once printed.
func (d *Definitions) BadgeProvision(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in BadgeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode badge input: %w", err)
	}

	if err := ctx.ScheduleActivity(ActivityRequestBadgePrinting, in).Get(nil); err != nil {
		return nil, err
	}

	_, expired, err := pollUntilTerminal(ctx, pollPlan{
		activity: ActivityPollBadgeStatus,
		interval: BadgePollInterval,
		expiry:   BadgePollExpiry,
		terminal: oneOf("printed"),
	}, in.BadgeID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, api.TimedOut(BadgeResult{BadgeID: in.BadgeID, Result: "timed_out"})
	}

	if err := ctx.ScheduleActivity(ActivityActivateBadge, in).Get(nil); err != nil {
		return nil, err
	}
	return BadgeResult{BadgeID: in.BadgeID, Result: "activated"}, nil
}

// BackgroundCheckInput starts a background-check instance.
type BackgroundCheckInput struct {
	CheckID    string `json:"check_id"`
	EmployeeID string `json:"employee_id,omitempty"`
}

// BackgroundCheckResult is the terminal result of a background-check
// instance.
type BackgroundCheckResult struct {
	CheckID string `json:"check_id"`
	Result  string `json:"result"`
}

// BackgroundCheck polls the BGV provider every four hours for up to seven
// days until the check completes or fails.
func (d *Definitions) BackgroundCheck(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in BackgroundCheckInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode background check input: %w", err)
	}

	status, expired, err := pollUntilTerminal(ctx, pollPlan{
		activity: ActivityPollBGVStatus,
		interval: BackgroundCheckPollInterval,
		expiry:   BackgroundCheckPollExpiry,
		terminal: oneOf("completed", "failed"),
	}, in.CheckID)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, api.TimedOut(BackgroundCheckResult{CheckID: in.CheckID, Result: "timed_out"})
	}
	return BackgroundCheckResult{CheckID: in.CheckID, Result: status}, nil
}

// AccountInput starts the mailbox and OneDrive flows.
type AccountInput struct {
	UPN        string `json:"upn"`
	EmployeeID string `json:"employee_id,omitempty"`
	Delegate   string `json:"delegate,omitempty"`
	TargetUPN  string `json:"target_upn,omitempty"`
}

// OneDriveTransfer initiates a OneDrive content transfer and polls its
// progress every thirty minutes for up to a day.
func (d *Definitions) OneDriveTransfer(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in AccountInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode account input: %w", err)
	}

	if err := ctx.ScheduleActivity(ActivityInitiateOneDriveTransfer, in).Get(nil); err != nil {
		return nil, err
	}

	_, expired, err := pollUntilTerminal(ctx, pollPlan{
		activity: ActivityPollOneDriveTransfer,
		interval: OneDrivePollInterval,
		expiry:   OneDrivePollExpiry,
		terminal: oneOf("completed"),
	}, in)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, api.TimedOut(map[string]string{"upn": in.UPN, "transfer": "timed_out"})
	}
	return map[string]string{"upn": in.UPN, "transfer": "completed"}, nil
}

// MailboxConversion converts a mailbox to shared, verifies the
// conversion, and assigns the delegate. A plain sequence with no waits.
func (d *Definitions) MailboxConversion(ctx api.OrchestrationContext, input json.RawMessage) (any, error) {
	var in AccountInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("decode account input: %w", err)
	}

	for _, activity := range []string{
		ActivityConvertMailbox,
		ActivityVerifyMailboxConversion,
		ActivityAssignMailboxDelegate,
	} {
		if err := ctx.ScheduleActivity(activity, in).Get(nil); err != nil {
			return nil, err
		}
	}
	return map[string]string{"upn": in.UPN, "status": "conversion_complete"}, nil
}
