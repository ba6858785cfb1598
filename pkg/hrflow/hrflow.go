package hrflow

import (
	"time"

	"github.com/petrijr/turno/pkg/api"
)

// Params tunes the definitions. Zero values take the package defaults.
type Params struct {
	// ApprovalSLA is the per-hop escalation window used when a request
	// does not carry its own sla_hours.
	ApprovalSLA time.Duration
}

// Definitions bundles the HR orchestration bodies with their parameters.
type Definitions struct {
	params Params
}

// New creates the definition set.
func New(params Params) *Definitions {
	if params.ApprovalSLA <= 0 {
		params.ApprovalSLA = DefaultApprovalSLA
	}
	return &Definitions{params: params}
}

// Register registers every orchestration definition with the engine.
func (d *Definitions) Register(e api.Engine) error {
	for name, fn := range map[string]api.OrchestratorFunc{
		TypeApprovalFlow:        d.ApprovalFlow,
		TypeLaptopProvision:     d.LaptopProvision,
		TypeAssetReturn:         d.AssetReturn,
		TypeBadgeProvision:      d.BadgeProvision,
		TypeBackgroundCheck:     d.BackgroundCheck,
		TypeOneDriveTransfer:    d.OneDriveTransfer,
		TypeMailboxConversion:   d.MailboxConversion,
		TypeBenefitsTermination: d.BenefitsTermination,
		TypeFinalPaycheck:       d.FinalPaycheck,
		TypeTaxDocument:         d.TaxDocument,
	} {
		if err := e.RegisterOrchestration(name, fn); err != nil {
			return err
		}
	}
	return nil
}
