package hrflow

import "time"

// Orchestration type names.
const (
	TypeApprovalFlow        = "approval-flow"
	TypeLaptopProvision     = "laptop-provision"
	TypeAssetReturn         = "asset-return"
	TypeBadgeProvision      = "badge-provision"
	TypeBackgroundCheck     = "background-check"
	TypeOneDriveTransfer    = "onedrive-transfer"
	TypeMailboxConversion   = "mailbox-conversion"
	TypeBenefitsTermination = "benefits-termination"
	TypeFinalPaycheck       = "final-paycheck"
	TypeTaxDocument         = "tax-document"
)

// External event names. These match the callback surfaces that raise
// them (approver response forms, payroll approval, COBRA election).
const (
	EventApprovalResponse      = "ApprovalResponse"
	EventPayrollApproval       = "PayrollApproval"
	EventCobraElectionResponse = "CobraElectionResponse"
)

// Activity names. Hosts bind implementations to these via
// Engine.RegisterActivity.
const (
	ActivityStoreApprovalRequest     = "store_approval_request"
	ActivitySendApprovalNotification = "send_approval_notification"
	ActivityEscalateToNextApprover   = "escalate_to_next_approver"
	ActivityRecordDecision           = "record_decision"

	ActivityPollServiceNowTicket  = "poll_servicenow_ticket"
	ActivitySendShippingLabel     = "send_shipping_label"
	ActivityPollAssetReturn       = "poll_asset_return_status"
	ActivityProcessReturnedAssets = "process_returned_assets"

	ActivityRequestBadgePrinting = "request_badge_printing"
	ActivityPollBadgeStatus      = "poll_badge_status"
	ActivityActivateBadge        = "activate_badge"

	ActivityPollBGVStatus = "poll_bgv_status"

	ActivityInitiateOneDriveTransfer = "initiate_onedrive_transfer"
	ActivityPollOneDriveTransfer     = "poll_onedrive_transfer"
	ActivityConvertMailbox           = "convert_mailbox"
	ActivityVerifyMailboxConversion  = "verify_mailbox_conversion"
	ActivityAssignMailboxDelegate    = "assign_mailbox_delegate"

	ActivityCalculateFinalAmounts  = "calculate_final_amounts"
	ActivityRequestPayrollApproval = "request_payroll_approval"
	ActivityScheduleDisbursement   = "schedule_disbursement"
	ActivityGenerateTaxDocument    = "generate_tax_doc"
	ActivityDeliverTaxDocument     = "deliver_tax_doc"

	ActivitySendCobraNotice   = "send_cobra_notice"
	ActivitySendCobraReminder = "send_cobra_reminder"
)

// Default timeline parameters, taken from the HR processes these
// definitions automate.
const (
	DefaultApprovalSLA = 24 * time.Hour

	LaptopPollInterval = 6 * time.Hour
	LaptopPollExpiry   = 10 * 24 * time.Hour

	AssetReturnPollInterval = 24 * time.Hour
	AssetReturnPollExpiry   = 14 * 24 * time.Hour

	BadgePollInterval = 4 * time.Hour
	BadgePollExpiry   = 5 * 24 * time.Hour

	BackgroundCheckPollInterval = 4 * time.Hour
	BackgroundCheckPollExpiry   = 7 * 24 * time.Hour

	OneDrivePollInterval = 30 * time.Minute
	OneDrivePollExpiry   = 24 * time.Hour

	// COBRA election window: initial notice, reminder at day 44, final
	// deadline at day 60.
	CobraReminderDelay  = 44 * 24 * time.Hour
	CobraElectionWindow = 16 * 24 * time.Hour
	PaycheckApprovalSLA = 48 * time.Hour
)
