package hrflow

import (
	"context"
	"encoding/json"

	"github.com/petrijr/turno/pkg/api"
)

// RegisterSimulatedActivities registers stand-in implementations for
// every activity name the definitions invoke. They perform no real I/O
// and answer with optimistic terminal statuses, which makes the full
// definition set runnable in local development without any external
// system.
func RegisterSimulatedActivities(e api.Engine) error {
	constant := func(v any) api.ActivityFunc {
		return func(ctx context.Context, input json.RawMessage) (any, error) {
			return v, nil
		}
	}

	defs := []api.ActivityDefinition{
		{Name: ActivityStoreApprovalRequest, Fn: constant("stored")},
		{Name: ActivitySendApprovalNotification, Fn: constant("sent")},
		{Name: ActivityEscalateToNextApprover, Fn: constant("escalated")},
		{Name: ActivityRecordDecision, Fn: constant("recorded")},

		{Name: ActivityPollServiceNowTicket, Fn: constant("fulfilled")},
		{Name: ActivitySendShippingLabel, Fn: constant("sent")},
		{Name: ActivityPollAssetReturn, Fn: constant("received")},
		{Name: ActivityProcessReturnedAssets, Fn: constant("processed")},

		{Name: ActivityRequestBadgePrinting, Fn: constant("requested")},
		{Name: ActivityPollBadgeStatus, Fn: constant("printed")},
		{Name: ActivityActivateBadge, Fn: constant("activated")},

		{Name: ActivityPollBGVStatus, Fn: constant("completed")},

		{Name: ActivityInitiateOneDriveTransfer, Fn: constant("initiated")},
		{Name: ActivityPollOneDriveTransfer, Fn: constant("completed")},
		{Name: ActivityConvertMailbox, Fn: constant("converted")},
		{Name: ActivityVerifyMailboxConversion, Fn: constant("verified")},
		{Name: ActivityAssignMailboxDelegate, Fn: constant("assigned")},

		{Name: ActivityCalculateFinalAmounts, Fn: constant(map[string]float64{
			"base": 4250.00, "pto": 0.0, "severance": 0.0, "total": 4250.00,
		})},
		{Name: ActivityRequestPayrollApproval, Fn: constant("requested")},
		{Name: ActivityScheduleDisbursement, Fn: constant("scheduled")},
		{Name: ActivityGenerateTaxDocument, Fn: constant("generated")},
		{Name: ActivityDeliverTaxDocument, Fn: constant("delivered")},

		{Name: ActivitySendCobraNotice, Fn: constant("sent")},
		{Name: ActivitySendCobraReminder, Fn: constant("sent")},
	}

	for _, def := range defs {
		if err := e.RegisterActivity(def); err != nil {
			return err
		}
	}
	return nil
}
