package billingstate

import (
	"time"

	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	"github.com/teamlumen/lumen-backend/pkg/plans"
)

// Snapshot is the effective billing view for an organization at a point in
// time. It is computed fresh on every read and never persisted, so stale disk
// state (an expired trial, an arrived cancellation date) self-corrects.
type Snapshot struct {
	EffectivePlanID enums.PlanID
	EffectiveStatus enums.BillingStatus
	TrialRemaining  time.Duration
	Features        map[enums.PageKey]bool
	Mirror          SubscriptionMirror
}

// SubscriptionMirror passes through the external processor's identifiers and
// dates for display. The engine never interprets these beyond pass-through.
type SubscriptionMirror struct {
	Provider                *enums.SubscriptionProvider
	SubscriptionID          *string
	CustomerID              *string
	PriceID                 *string
	CurrentPeriodEnd        *time.Time
	TrialEndsAt             *time.Time
	CancellationEffectiveAt *time.Time
}

// Derive maps the organization's stored billing fields plus the current clock
// to the normalized effective view. Pure: no I/O, no writes, deterministic for
// a given (org, now).
func Derive(catalog *plans.Catalog, org *models.Organization, now time.Time) Snapshot {
	planID := catalog.Default()
	status := enums.BillingStatusActive

	if org != nil {
		if catalog.IsValid(org.PlanID) {
			planID = org.PlanID
		}
		if org.BillingStatus.IsValid() {
			status = org.BillingStatus
		}
	}

	// Lazy trial expiry: no background timer flips the status, every read does.
	if org != nil && status == enums.BillingStatusTrialing &&
		org.TrialEndsAt != nil && !org.TrialEndsAt.After(now) {
		status = enums.BillingStatusTrialExpired
	}

	if status == enums.BillingStatusCanceled || status == enums.BillingStatusTrialExpired {
		// The status already signals non-paid; a still-future cancellation
		// date under these statuses is treated as already ended.
		planID = catalog.Default()
	}

	// A paid org whose scheduled cancellation date has arrived reverts to the
	// default plan even before a reconciling webhook updates the status.
	if org != nil && org.CancellationEffectiveAt != nil &&
		!org.CancellationEffectiveAt.After(now) && status != enums.BillingStatusTrialing {
		planID = catalog.Default()
	}

	var remaining time.Duration
	if org != nil && status == enums.BillingStatusTrialing && org.TrialEndsAt != nil {
		remaining = org.TrialEndsAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
	}

	snapshot := Snapshot{
		EffectivePlanID: planID,
		EffectiveStatus: status,
		TrialRemaining:  remaining,
		Features:        catalog.FeatureMap(planID),
	}
	if org != nil {
		snapshot.Mirror = SubscriptionMirror{
			Provider:                org.SubscriptionProvider,
			SubscriptionID:          org.SubscriptionID,
			CustomerID:              org.SubscriptionCustomerID,
			PriceID:                 org.SubscriptionPriceID,
			CurrentPeriodEnd:        org.SubscriptionCurrentPeriodEnd,
			TrialEndsAt:             org.TrialEndsAt,
			CancellationEffectiveAt: org.CancellationEffectiveAt,
		}
	}
	return snapshot
}
