package billing

import (
	"time"

	"github.com/teamlumen/lumen-backend/internal/billingstate"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	"github.com/teamlumen/lumen-backend/pkg/plans"
)

// Overview is the effective billing view returned to clients. All fields are
// derived at read time; nothing here is stored as-is.
type Overview struct {
	PlanID             enums.PlanID           `json:"plan_id"`
	PlanName           string                 `json:"plan_name"`
	BillingStatus      enums.BillingStatus    `json:"billing_status"`
	TrialRemainingSecs int64                  `json:"trial_remaining_seconds"`
	TrialEndsAt        *time.Time             `json:"trial_ends_at,omitempty"`
	CancellationDate   *time.Time             `json:"cancellation_effective_at,omitempty"`
	Features           map[enums.PageKey]bool `json:"features"`
	Subscription       *SubscriptionOverview  `json:"subscription,omitempty"`
}

// SubscriptionOverview mirrors external processor identifiers for display.
type SubscriptionOverview struct {
	Provider         enums.SubscriptionProvider `json:"provider"`
	SubscriptionID   string                     `json:"subscription_id"`
	PriceID          *string                    `json:"price_id,omitempty"`
	CurrentPeriodEnd *time.Time                 `json:"current_period_end,omitempty"`
}

// PlanInfo is a catalog entry shaped for the public plans listing.
type PlanInfo struct {
	ID        enums.PlanID           `json:"id"`
	Name      string                 `json:"name"`
	Price     string                 `json:"price"`
	Interval  enums.BillingInterval  `json:"interval"`
	TrialDays int                    `json:"trial_days"`
	Features  map[enums.PageKey]bool `json:"features"`
}

// Invoice is a pass-through of the processor's invoice record. Invoices are
// never stored locally; each listing is a live fetch.
type Invoice struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	Status      string     `json:"status"`
	Total       int64      `json:"total"`
	Currency    string     `json:"currency"`
	CreatedAt   time.Time  `json:"created_at"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	HostedURL   string     `json:"hosted_url,omitempty"`
	PDFURL      string     `json:"pdf_url,omitempty"`
}

// CheckoutSession is the redirect handle returned to the client.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// PortalSession is the processor-hosted management redirect.
type PortalSession struct {
	URL string `json:"url"`
}

func overviewFromSnapshot(catalog *plans.Catalog, snap billingstate.Snapshot) *Overview {
	name := string(snap.EffectivePlanID)
	if plan, ok := catalog.ByID(snap.EffectivePlanID); ok {
		name = plan.Name
	}

	overview := &Overview{
		PlanID:             snap.EffectivePlanID,
		PlanName:           name,
		BillingStatus:      snap.EffectiveStatus,
		TrialRemainingSecs: int64(snap.TrialRemaining.Seconds()),
		CancellationDate:   snap.Mirror.CancellationEffectiveAt,
		Features:           snap.Features,
	}
	if snap.EffectiveStatus == enums.BillingStatusTrialing {
		overview.TrialEndsAt = snap.Mirror.TrialEndsAt
	}
	if snap.Mirror.Provider != nil && snap.Mirror.SubscriptionID != nil {
		overview.Subscription = &SubscriptionOverview{
			Provider:         *snap.Mirror.Provider,
			SubscriptionID:   *snap.Mirror.SubscriptionID,
			PriceID:          snap.Mirror.PriceID,
			CurrentPeriodEnd: snap.Mirror.CurrentPeriodEnd,
		}
	}
	return overview
}

// PlanList shapes the catalog for the public listing endpoint.
func PlanList(catalog *plans.Catalog) []PlanInfo {
	entries := catalog.List()
	out := make([]PlanInfo, 0, len(entries))
	for _, plan := range entries {
		out = append(out, PlanInfo{
			ID:        plan.ID,
			Name:      plan.Name,
			Price:     plan.Price.StringFixed(2),
			Interval:  plan.Interval,
			TrialDays: plan.TrialDays,
			Features:  catalog.FeatureMap(plan.ID),
		})
	}
	return out
}
