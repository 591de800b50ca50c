package stripewebhook

import (
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/teamlumen/lumen-backend/internal/billingstate"
	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	"github.com/teamlumen/lumen-backend/pkg/plans"
)

// mapStatus normalizes Stripe's subscription status vocabulary onto the
// billing lifecycle. Grace-period states (past_due, incomplete) stay active;
// the processor decides when delinquency becomes cancellation.
func mapStatus(status stripe.SubscriptionStatus) enums.BillingStatus {
	switch status {
	case stripe.SubscriptionStatusTrialing:
		return enums.BillingStatusTrialing
	case stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusPastDue,
		stripe.SubscriptionStatusIncomplete:
		return enums.BillingStatusActive
	case stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusUnpaid:
		return enums.BillingStatusCanceled
	case stripe.SubscriptionStatusIncompleteExpired:
		return enums.BillingStatusTrialExpired
	default:
		return enums.BillingStatusActive
	}
}

// Reconcile computes the complete replacement billing state for a
// subscription event. Pure and idempotent: the same (org, event) pair always
// yields the same patch, so duplicate deliveries are harmless.
func Reconcile(catalog *plans.Catalog, org *models.Organization, event SubscriptionEvent, now time.Time) billingstate.Patch {
	patch := billingstate.PatchFrom(org)
	status := mapStatus(event.Status)
	patch.BillingStatus = status

	patch.PlanID = resolvePlan(catalog, org, event)
	terminal := status == enums.BillingStatusCanceled || status == enums.BillingStatusTrialExpired
	if terminal {
		patch.PlanID = catalog.Default()
	}

	// Scheduled cancellation: an explicit cancel date wins, then
	// cancel-at-period-end. Neither present means the subscription renews and
	// any stored date is stale.
	switch {
	case event.CancelAt != nil:
		patch.CancellationEffectiveAt = event.CancelAt
	case event.CancelAtPeriodEnd && event.CurrentPeriodEnd != nil:
		patch.CancellationEffectiveAt = event.CurrentPeriodEnd
	default:
		patch.CancellationEffectiveAt = nil
	}

	applyTrialBookkeeping(&patch, org, event, status, now)

	if terminal {
		// The subscription is dead: its ids are never adopted as live linkage.
		// The stored customer id survives untouched so invoice history and the
		// portal keep working.
		patch.SubscriptionProvider = nil
		patch.SubscriptionID = nil
		patch.SubscriptionPriceID = nil
		patch.SubscriptionCurrentPeriodEnd = nil
		return patch
	}

	provider := enums.SubscriptionProviderStripe
	patch.SubscriptionProvider = &provider
	if event.SubscriptionID != "" {
		subscriptionID := event.SubscriptionID
		patch.SubscriptionID = &subscriptionID
	}
	if event.CustomerID != "" {
		customerID := event.CustomerID
		patch.SubscriptionCustomerID = &customerID
	}
	if event.PriceID != "" {
		priceID := event.PriceID
		patch.SubscriptionPriceID = &priceID
	}
	patch.SubscriptionCurrentPeriodEnd = event.CurrentPeriodEnd

	return patch
}

// resolvePlan correlates the event to a catalog plan: the stamped metadata is
// authoritative, a catalog price-id match is the fallback, and an
// uncorrelatable event keeps the stored plan rather than inventing one.
func resolvePlan(catalog *plans.Catalog, org *models.Organization, event SubscriptionEvent) enums.PlanID {
	if raw, ok := event.Metadata[metadataPlanIDKey]; ok {
		if candidate := enums.PlanID(raw); catalog.IsValid(candidate) {
			return candidate
		}
	}
	if plan, ok := catalog.ByPriceID(event.PriceID); ok {
		return plan.ID
	}
	if org != nil && catalog.IsValid(org.PlanID) {
		return org.PlanID
	}
	return catalog.Default()
}

// applyTrialBookkeeping records trial dates the processor reports and marks
// the trial consumed the first time the subscription leaves trialing. The
// consumed marker is never fabricated for organizations that never trialed
// and never rewritten once set.
func applyTrialBookkeeping(patch *billingstate.Patch, org *models.Organization, event SubscriptionEvent, status enums.BillingStatus, now time.Time) {
	if status == enums.BillingStatusTrialing {
		if event.TrialStart != nil {
			patch.TrialStartedAt = event.TrialStart
		}
		if event.TrialEnd != nil {
			patch.TrialEndsAt = event.TrialEnd
		}
		trialPlan := patch.PlanID
		patch.TrialPlanID = &trialPlan
		return
	}

	trialed := event.TrialEnd != nil ||
		(org != nil && (org.BillingStatus == enums.BillingStatusTrialing || org.TrialEndsAt != nil))
	if !trialed || patch.TrialEndedAt != nil {
		return
	}

	ended := now
	if event.TrialEnd != nil && event.TrialEnd.Before(now) {
		ended = *event.TrialEnd
	}
	patch.TrialEndedAt = &ended
}
