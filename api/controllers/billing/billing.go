package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/teamlumen/lumen-backend/api/middleware"
	"github.com/teamlumen/lumen-backend/api/responses"
	"github.com/teamlumen/lumen-backend/api/validators"
	billingsvc "github.com/teamlumen/lumen-backend/internal/billing"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/logger"
)

// BillingService describes the billing operations used by the HTTP controllers.
type BillingService interface {
	Overview(ctx context.Context, orgID uuid.UUID) (*billingsvc.Overview, error)
	ChangePlan(ctx context.Context, orgID uuid.UUID, requested enums.PlanID, isBillingManager bool) (*billingsvc.Overview, error)
	DowngradeToFree(ctx context.Context, orgID uuid.UUID) (*billingsvc.Overview, error)
	CreateCheckoutSession(ctx context.Context, orgID uuid.UUID, requested enums.PlanID, isBillingManager bool) (*billingsvc.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, orgID uuid.UUID, isBillingManager bool) (*billingsvc.PortalSession, error)
	ListInvoices(ctx context.Context, orgID uuid.UUID) ([]billingsvc.Invoice, error)
	Plans() []billingsvc.PlanInfo
}

type changePlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

type checkoutRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

type invoiceListResponse struct {
	Invoices []billingsvc.Invoice `json:"invoices"`
}

type planListResponse struct {
	Plans []billingsvc.PlanInfo `json:"plans"`
}

func orgIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.OrgIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "organization context required")
	}
	orgID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid organization id")
	}
	return orgID, nil
}

// callerManagesBilling reports whether the actor may run billing mutations.
func callerManagesBilling(r *http.Request) bool {
	if middleware.PlatformOperatorFromContext(r.Context()) {
		return true
	}
	role, err := enums.ParseMemberRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return false
	}
	return role.IsBillingManager()
}

func Overview(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		overview, err := svc.Overview(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, overview)
	}
}

func ChangePlan(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		overview, err := svc.ChangePlan(r.Context(), orgID, enums.PlanID(payload.PlanID), callerManagesBilling(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, overview)
	}
}

// Downgrade reverts the organization to the default plan immediately. The
// route is role-gated; the handler re-checks the token role like the other
// billing mutations.
func Downgrade(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !callerManagesBilling(r) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "caller is not a billing manager"))
			return
		}

		overview, err := svc.DowngradeToFree(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, overview)
	}
}

func Checkout(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateCheckoutSession(r.Context(), orgID, enums.PlanID(payload.PlanID), callerManagesBilling(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

func Portal(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreatePortalSession(r.Context(), orgID, callerManagesBilling(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

func Invoices(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		orgID, err := orgIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoices, err := svc.ListInvoices(r.Context(), orgID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoiceListResponse{Invoices: invoices})
	}
}

func Plans(svc BillingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		responses.WriteSuccess(w, planListResponse{Plans: svc.Plans()})
	}
}
