package billingstate

import (
	"time"

	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
)

// Patch is a complete replacement of an organization's billing fields. Writers
// (plan changes, webhook reconciliation) always produce the full field set from
// their inputs rather than incrementally mutating the record, which is what
// makes reapplying the same event a no-op.
type Patch struct {
	PlanID        enums.PlanID
	BillingStatus enums.BillingStatus

	TrialStartedAt *time.Time
	TrialEndsAt    *time.Time
	TrialPlanID    *enums.PlanID
	TrialEndedAt   *time.Time

	CancellationEffectiveAt *time.Time

	SubscriptionProvider         *enums.SubscriptionProvider
	SubscriptionID               *string
	SubscriptionCustomerID       *string
	SubscriptionPriceID          *string
	SubscriptionCurrentPeriodEnd *time.Time
}

// PatchFrom copies the organization's current billing fields so a writer can
// start from the stored state and override only what its decision table says.
func PatchFrom(org *models.Organization) Patch {
	if org == nil {
		return Patch{}
	}
	return Patch{
		PlanID:                       org.PlanID,
		BillingStatus:                org.BillingStatus,
		TrialStartedAt:               org.TrialStartedAt,
		TrialEndsAt:                  org.TrialEndsAt,
		TrialPlanID:                  org.TrialPlanID,
		TrialEndedAt:                 org.TrialEndedAt,
		CancellationEffectiveAt:      org.CancellationEffectiveAt,
		SubscriptionProvider:         org.SubscriptionProvider,
		SubscriptionID:               org.SubscriptionID,
		SubscriptionCustomerID:       org.SubscriptionCustomerID,
		SubscriptionPriceID:          org.SubscriptionPriceID,
		SubscriptionCurrentPeriodEnd: org.SubscriptionCurrentPeriodEnd,
	}
}

// ClearProcessorLinkage drops every external-processor identifier. Used when a
// plan requires no external subscription or a subscription is torn down.
func (p *Patch) ClearProcessorLinkage() {
	p.SubscriptionProvider = nil
	p.SubscriptionID = nil
	p.SubscriptionCustomerID = nil
	p.SubscriptionPriceID = nil
	p.SubscriptionCurrentPeriodEnd = nil
}

// ApplyTo writes the patch onto the organization in memory.
func (p Patch) ApplyTo(org *models.Organization) {
	if org == nil {
		return
	}
	org.PlanID = p.PlanID
	org.BillingStatus = p.BillingStatus
	org.TrialStartedAt = p.TrialStartedAt
	org.TrialEndsAt = p.TrialEndsAt
	org.TrialPlanID = p.TrialPlanID
	org.TrialEndedAt = p.TrialEndedAt
	org.CancellationEffectiveAt = p.CancellationEffectiveAt
	org.SubscriptionProvider = p.SubscriptionProvider
	org.SubscriptionID = p.SubscriptionID
	org.SubscriptionCustomerID = p.SubscriptionCustomerID
	org.SubscriptionPriceID = p.SubscriptionPriceID
	org.SubscriptionCurrentPeriodEnd = p.SubscriptionCurrentPeriodEnd
}

// Updates returns the GORM column map for the patch. Every billing column is
// present so a write replaces the whole billing state atomically.
func (p Patch) Updates() map[string]any {
	return map[string]any{
		"plan_id":                         p.PlanID,
		"billing_status":                  p.BillingStatus,
		"trial_started_at":                p.TrialStartedAt,
		"trial_ends_at":                   p.TrialEndsAt,
		"trial_plan_id":                   p.TrialPlanID,
		"trial_ended_at":                  p.TrialEndedAt,
		"cancellation_effective_at":       p.CancellationEffectiveAt,
		"subscription_provider":           p.SubscriptionProvider,
		"subscription_id":                 p.SubscriptionID,
		"subscription_customer_id":        p.SubscriptionCustomerID,
		"subscription_price_id":           p.SubscriptionPriceID,
		"subscription_current_period_end": p.SubscriptionCurrentPeriodEnd,
	}
}
