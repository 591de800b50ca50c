package planchange

import (
	"time"

	"github.com/teamlumen/lumen-backend/internal/billingstate"
	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/plans"
)

// ChangePlan computes the billing patch for an administrative plan change.
// Pure: persistence is the caller's responsibility. The one-trial-per-org
// invariant is enforced here: a trial is only started when TrialEndedAt has
// never been set.
func ChangePlan(
	catalog *plans.Catalog,
	org *models.Organization,
	isBillingManager bool,
	requested enums.PlanID,
	now time.Time,
) (*billingstate.Patch, error) {
	if org == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "organization is required")
	}
	if !isBillingManager {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "caller is not a billing manager")
	}
	if !catalog.IsValid(requested) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan id").
			WithDetails(map[string]any{"plan_id": string(requested)})
	}

	patch := billingstate.PatchFrom(org)

	if requested == catalog.Default() {
		// The default plan needs no external subscription. Historical trial
		// start/plan stay as an audit trail.
		patch.PlanID = requested
		patch.BillingStatus = enums.BillingStatusActive
		patch.TrialEndsAt = nil
		patch.ClearProcessorLinkage()
		return &patch, nil
	}

	trialNeverUsed := org.TrialEndedAt == nil
	offersTrial := catalog.TrialLength(requested) > 0

	if trialNeverUsed && offersTrial {
		// Re-requesting the plan mid-trial does not restart the clock.
		if org.BillingStatus == enums.BillingStatusTrialing &&
			org.TrialPlanID != nil && *org.TrialPlanID == requested &&
			org.TrialEndsAt != nil && org.TrialEndsAt.After(now) {
			patch.PlanID = requested
			return &patch, nil
		}

		started := now
		ends := now.Add(catalog.TrialLength(requested))
		trialPlan := requested
		patch.PlanID = requested
		patch.BillingStatus = enums.BillingStatusTrialing
		patch.TrialStartedAt = &started
		patch.TrialEndsAt = &ends
		patch.TrialPlanID = &trialPlan
		patch.TrialEndedAt = nil
		return &patch, nil
	}

	// Trial already used, or the plan offers none: straight to active with
	// trial history untouched.
	patch.PlanID = requested
	patch.BillingStatus = enums.BillingStatusActive
	return &patch, nil
}

// DowngradeToFree unconditionally reverts the organization to the default
// plan. Used both as a direct administrative action and as the terminal step
// when an organization's last owner is removed.
func DowngradeToFree(catalog *plans.Catalog, org *models.Organization) *billingstate.Patch {
	patch := billingstate.PatchFrom(org)
	patch.PlanID = catalog.Default()
	patch.BillingStatus = enums.BillingStatusActive
	patch.CancellationEffectiveAt = nil
	patch.ClearProcessorLinkage()
	return &patch
}
