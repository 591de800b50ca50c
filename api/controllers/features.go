package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/teamlumen/lumen-backend/api/middleware"
	"github.com/teamlumen/lumen-backend/api/responses"
	"github.com/teamlumen/lumen-backend/internal/featuregate"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/logger"
)

type featureCheckResponse struct {
	Page        enums.PageKey `json:"page"`
	Allowed     bool          `json:"allowed"`
	PlanAllowed bool          `json:"plan_allowed"`
	UserAllowed bool          `json:"user_allowed"`
}

// FeatureCheck gates a single page for the acting user: plan gate first,
// then the per-user grant unless the actor manages billing.
func FeatureCheck(features featuregate.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if features == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "feature gate unavailable"))
			return
		}

		page, err := enums.ParsePageKey(chi.URLParam(r, "page"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid page"))
			return
		}

		rawUser := middleware.UserIDFromContext(ctx)
		if rawUser == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		userID, err := uuid.Parse(rawUser)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		rawOrg := middleware.OrgIDFromContext(ctx)
		if rawOrg == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "organization context required"))
			return
		}
		orgID, err := uuid.Parse(rawOrg)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid organization id"))
			return
		}

		role, _ := enums.ParseMemberRole(middleware.RoleFromContext(ctx))

		decision, err := features.CheckPage(ctx, featuregate.CheckRequest{
			OrgID:            orgID,
			UserID:           userID,
			Role:             role,
			PlatformOperator: middleware.PlatformOperatorFromContext(ctx),
			Page:             page,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, featureCheckResponse{
			Page:        page,
			Allowed:     decision.Allowed,
			PlanAllowed: decision.PlanAllowed,
			UserAllowed: decision.UserAllowed,
		})
	}
}
