package featuregate

import (
	"github.com/teamlumen/lumen-backend/pkg/enums"
)

// Decision explains a gate check so callers can surface why a page is locked.
type Decision struct {
	Allowed     bool
	PlanAllowed bool
	UserAllowed bool
}

// Access describes the caller within an organization for gating purposes.
type Access struct {
	Role             enums.MemberRole
	PlatformOperator bool
	// Grants holds explicit per-user page rows. A page with no entry falls
	// back to allowed; only an explicit false revokes it.
	Grants map[enums.PageKey]bool
}

// Check gates a page behind the plan first and the per-user grant second.
// Owners, admins and platform operators skip the grant check but never the
// plan gate: no role unlocks a page the organization's plan does not include.
func Check(planFeatures map[enums.PageKey]bool, access Access, page enums.PageKey) Decision {
	decision := Decision{
		PlanAllowed: planFeatures[page],
		UserAllowed: true,
	}

	if !access.PlatformOperator && !access.Role.IsBillingManager() {
		if allowed, ok := access.Grants[page]; ok {
			decision.UserAllowed = allowed
		}
	}

	decision.Allowed = decision.PlanAllowed && decision.UserAllowed
	return decision
}
