package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/teamlumen/lumen-backend/internal/billingevents"
	"github.com/teamlumen/lumen-backend/internal/billingstate"
	"github.com/teamlumen/lumen-backend/internal/planchange"
	"github.com/teamlumen/lumen-backend/pkg/config"
	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/logger"
	"github.com/teamlumen/lumen-backend/pkg/plans"
)

// Metadata keys stamped onto checkout sessions and subscriptions so webhook
// payloads can be correlated back to an organization.
const (
	MetadataOrgIDKey  = "organization_id"
	MetadataPlanIDKey = "plan_id"
)

type eventPublisher interface {
	BillingChanged(ctx context.Context, event billingevents.Event)
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo    Repository
	Catalog *plans.Catalog
	Stripe  StripeBillingClient
	Events  eventPublisher
	Logger  *logger.Logger
	Config  config.BillingConfig
}

// Service orchestrates billing reads, plan changes and processor sessions.
type Service struct {
	repo    Repository
	catalog *plans.Catalog
	stripe  StripeBillingClient
	events  eventPublisher
	logg    *logger.Logger
	cfg     config.BillingConfig
	now     func() time.Time
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &Service{
		repo:    params.Repo,
		catalog: params.Catalog,
		stripe:  params.Stripe,
		events:  params.Events,
		logg:    params.Logger,
		cfg:     params.Config,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) loadOrg(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.repo.FindByID(ctx, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization")
	}
	if org == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	return org, nil
}

// Overview derives the effective billing view for the organization.
func (s *Service) Overview(ctx context.Context, orgID uuid.UUID) (*Overview, error) {
	org, err := s.loadOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	snap := billingstate.Derive(s.catalog, org, s.now())
	return overviewFromSnapshot(s.catalog, snap), nil
}

// ChangePlan applies an administrative plan change and returns the resulting
// view. The write is version-guarded; a concurrent webhook reconciliation
// surfaces as a retryable conflict.
func (s *Service) ChangePlan(ctx context.Context, orgID uuid.UUID, requested enums.PlanID, isBillingManager bool) (*Overview, error) {
	org, err := s.loadOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	patch, err := planchange.ChangePlan(s.catalog, org, isBillingManager, requested, now)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ApplyBillingPatch(ctx, orgID, org.BillingVersion, *patch); err != nil {
		return nil, err
	}

	patch.ApplyTo(org)
	s.publishChange(ctx, org.ID, *patch, billingevents.SourcePlanChange, now)

	snap := billingstate.Derive(s.catalog, org, now)
	return overviewFromSnapshot(s.catalog, snap), nil
}

// DowngradeToFree unconditionally reverts the organization to the default
// plan, clearing any pending cancellation and processor linkage.
func (s *Service) DowngradeToFree(ctx context.Context, orgID uuid.UUID) (*Overview, error) {
	org, err := s.loadOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	patch := planchange.DowngradeToFree(s.catalog, org)
	if err := s.repo.ApplyBillingPatch(ctx, orgID, org.BillingVersion, *patch); err != nil {
		return nil, err
	}

	patch.ApplyTo(org)
	s.publishChange(ctx, org.ID, *patch, billingevents.SourceDowngrade, now)

	snap := billingstate.Derive(s.catalog, org, now)
	return overviewFromSnapshot(s.catalog, snap), nil
}

// CreateCheckoutSession opens a processor-hosted payment session for a paid
// plan. The organization and plan are stamped into the subscription metadata
// so the resulting webhooks can be correlated.
func (s *Service) CreateCheckoutSession(ctx context.Context, orgID uuid.UUID, requested enums.PlanID, isBillingManager bool) (*CheckoutSession, error) {
	if !isBillingManager {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "caller is not a billing manager")
	}

	plan, ok := s.catalog.ByID(requested)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan id").
			WithDetails(map[string]any{"plan_id": string(requested)})
	}
	if plan.PriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "plan requires no checkout")
	}

	org, err := s.loadOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, org)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		MetadataOrgIDKey:  org.ID.String(),
		MetadataPlanIDKey: string(plan.ID),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.cfg.CheckoutSuccessURL),
		CancelURL:  stripe.String(s.cfg.CheckoutCancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if org.TrialEndedAt == nil && plan.OffersTrial() {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(int64(plan.TrialDays))
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePortalSession opens the processor-hosted management portal. The
// organization must already have a processor customer.
func (s *Service) CreatePortalSession(ctx context.Context, orgID uuid.UUID, isBillingManager bool) (*PortalSession, error) {
	if !isBillingManager {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "caller is not a billing manager")
	}

	org, err := s.loadOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.SubscriptionCustomerID == nil || *org.SubscriptionCustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "organization has no billing profile")
	}

	session, err := s.stripe.CreatePortalSession(ctx, &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*org.SubscriptionCustomerID),
		ReturnURL: stripe.String(s.cfg.PortalReturnURL),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create portal session")
	}
	return &PortalSession{URL: session.URL}, nil
}

// ListInvoices fetches the organization's invoices live from the processor.
// Nothing is cached or stored; an organization without a billing profile has
// an empty history.
func (s *Service) ListInvoices(ctx context.Context, orgID uuid.UUID) ([]Invoice, error) {
	org, err := s.loadOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.SubscriptionCustomerID == nil || *org.SubscriptionCustomerID == "" {
		return []Invoice{}, nil
	}

	limit := s.cfg.InvoiceListLimit
	if limit <= 0 {
		limit = 12
	}
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(*org.SubscriptionCustomerID),
	}
	params.Limit = stripe.Int64(int64(limit))

	raw, err := s.stripe.ListInvoices(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}

	invoices := make([]Invoice, 0, len(raw))
	for _, inv := range raw {
		if inv == nil {
			continue
		}
		entry := Invoice{
			ID:        inv.ID,
			Number:    inv.Number,
			Status:    string(inv.Status),
			Total:     inv.Total,
			Currency:  string(inv.Currency),
			CreatedAt: time.Unix(inv.Created, 0).UTC(),
			HostedURL: inv.HostedInvoiceURL,
			PDFURL:    inv.InvoicePDF,
		}
		if inv.PeriodStart > 0 {
			start := time.Unix(inv.PeriodStart, 0).UTC()
			entry.PeriodStart = &start
		}
		if inv.PeriodEnd > 0 {
			end := time.Unix(inv.PeriodEnd, 0).UTC()
			entry.PeriodEnd = &end
		}
		invoices = append(invoices, entry)
	}
	return invoices, nil
}

// Plans returns the public catalog listing.
func (s *Service) Plans() []PlanInfo {
	return PlanList(s.catalog)
}

func (s *Service) ensureCustomer(ctx context.Context, org *models.Organization) (string, error) {
	if org.SubscriptionCustomerID != nil && *org.SubscriptionCustomerID != "" {
		return *org.SubscriptionCustomerID, nil
	}

	customer, err := s.stripe.CreateCustomer(ctx, &stripe.CustomerParams{
		Name: stripe.String(org.Name),
		Metadata: map[string]string{
			MetadataOrgIDKey: org.ID.String(),
		},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
	}
	if err := s.repo.SetCustomerID(ctx, org.ID, customer.ID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store stripe customer id")
	}
	customerID := customer.ID
	org.SubscriptionCustomerID = &customerID
	return customerID, nil
}

func (s *Service) publishChange(ctx context.Context, orgID uuid.UUID, patch billingstate.Patch, source billingevents.Source, now time.Time) {
	if s.events == nil {
		return
	}
	s.events.BillingChanged(ctx, billingevents.Event{
		OrganizationID: orgID,
		PlanID:         patch.PlanID,
		BillingStatus:  patch.BillingStatus,
		Source:         source,
		OccurredAt:     now,
	})
}
