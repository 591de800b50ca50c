package featuregate

import (
	"context"

	"github.com/google/uuid"

	billingsvc "github.com/teamlumen/lumen-backend/internal/billing"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
)

// PlanFeatureSource yields the derived billing overview carrying the
// effective feature map for an organization.
type PlanFeatureSource interface {
	Overview(ctx context.Context, orgID uuid.UUID) (*billingsvc.Overview, error)
}

// GrantSource yields the explicit per-user page grants within an organization.
type GrantSource interface {
	GrantsForUser(ctx context.Context, userID, orgID uuid.UUID) (map[enums.PageKey]bool, error)
}

// Service resolves the inputs of a gate check and runs it.
type Service interface {
	CheckPage(ctx context.Context, req CheckRequest) (Decision, error)
}

type CheckRequest struct {
	OrgID            uuid.UUID
	UserID           uuid.UUID
	Role             enums.MemberRole
	PlatformOperator bool
	Page             enums.PageKey
}

type service struct {
	plans  PlanFeatureSource
	grants GrantSource
}

func NewService(plans PlanFeatureSource, grants GrantSource) (Service, error) {
	if plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan feature source is required")
	}
	if grants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "grant source is required")
	}
	return &service{plans: plans, grants: grants}, nil
}

func (s *service) CheckPage(ctx context.Context, req CheckRequest) (Decision, error) {
	if !req.Page.IsValid() {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown page")
	}

	overview, err := s.plans.Overview(ctx, req.OrgID)
	if err != nil {
		return Decision{}, err
	}

	grants, err := s.grants.GrantsForUser(ctx, req.UserID, req.OrgID)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load page grants")
	}

	access := Access{
		Role:             req.Role,
		PlatformOperator: req.PlatformOperator,
		Grants:           grants,
	}
	return Check(overview.Features, access, req.Page), nil
}
