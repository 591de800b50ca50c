package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/teamlumen/lumen-backend/internal/billingevents"
	"github.com/teamlumen/lumen-backend/internal/billingstate"
	"github.com/teamlumen/lumen-backend/pkg/config"
	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/plans"
)

var testCatalog = plans.NewCatalog(plans.Config{
	StarterPriceID: "price_starter",
	ProPriceID:     "price_pro",
})

type stubRepo struct {
	org     *models.Organization
	applied []billingstate.Patch
	applyFn func(orgID uuid.UUID, fromVersion int64, patch billingstate.Patch) error
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }
func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	if s.org != nil && s.org.ID == id {
		return s.org, nil
	}
	return nil, nil
}
func (s *stubRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Organization, error) {
	return nil, nil
}
func (s *stubRepo) FindByCustomerID(ctx context.Context, customerID string) (*models.Organization, error) {
	return nil, nil
}
func (s *stubRepo) ApplyBillingPatch(ctx context.Context, orgID uuid.UUID, fromVersion int64, patch billingstate.Patch) error {
	if s.applyFn != nil {
		return s.applyFn(orgID, fromVersion, patch)
	}
	s.applied = append(s.applied, patch)
	return nil
}
func (s *stubRepo) SetCustomerID(ctx context.Context, orgID uuid.UUID, customerID string) error {
	return nil
}

type stubStripe struct {
	checkoutParams *stripe.CheckoutSessionParams
	portalParams   *stripe.BillingPortalSessionParams
	invoices       []*stripe.Invoice
	customersMade  int
}

func (s *stubStripe) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.checkoutParams = params
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}
func (s *stubStripe) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	s.portalParams = params
	return &stripe.BillingPortalSession{URL: "https://portal.example/ps_1"}, nil
}
func (s *stubStripe) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	s.customersMade++
	return &stripe.Customer{ID: "cus_new"}, nil
}
func (s *stubStripe) ListInvoices(ctx context.Context, params *stripe.InvoiceListParams) ([]*stripe.Invoice, error) {
	return s.invoices, nil
}

type stubEvents struct {
	events []billingevents.Event
}

func (s *stubEvents) BillingChanged(ctx context.Context, event billingevents.Event) {
	s.events = append(s.events, event)
}

func newTestService(t *testing.T, repo *stubRepo, client *stubStripe, events *stubEvents) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Catalog: testCatalog,
		Stripe:  client,
		Events:  events,
		Config: config.BillingConfig{
			CheckoutSuccessURL: "https://app.example/billing/success",
			CheckoutCancelURL:  "https://app.example/billing/cancel",
			PortalReturnURL:    "https://app.example/billing",
			InvoiceListLimit:   12,
		},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func TestOverviewUnknownOrg(t *testing.T) {
	svc := newTestService(t, &stubRepo{}, &stubStripe{}, nil)
	_, err := svc.Overview(context.Background(), uuid.New())
	if pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOverviewDerivesExpiredTrial(t *testing.T) {
	ends := time.Now().UTC().Add(-time.Hour)
	org := &models.Organization{
		ID:            uuid.New(),
		PlanID:        enums.PlanPro,
		BillingStatus: enums.BillingStatusTrialing,
		TrialEndsAt:   &ends,
	}
	svc := newTestService(t, &stubRepo{org: org}, &stubStripe{}, nil)

	overview, err := svc.Overview(context.Background(), org.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if overview.BillingStatus != enums.BillingStatusTrialExpired {
		t.Fatalf("status: got %s, want trial_expired", overview.BillingStatus)
	}
	if overview.PlanID != enums.PlanFree {
		t.Fatalf("plan: got %s, want free", overview.PlanID)
	}
}

func TestChangePlanPersistsAndPublishes(t *testing.T) {
	org := &models.Organization{
		ID:             uuid.New(),
		PlanID:         enums.PlanFree,
		BillingStatus:  enums.BillingStatusActive,
		BillingVersion: 3,
	}
	repo := &stubRepo{org: org}
	events := &stubEvents{}
	svc := newTestService(t, repo, &stubStripe{}, events)

	overview, err := svc.ChangePlan(context.Background(), org.ID, enums.PlanPro, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if overview.BillingStatus != enums.BillingStatusTrialing {
		t.Fatalf("status: got %s, want trialing", overview.BillingStatus)
	}
	if len(repo.applied) != 1 {
		t.Fatalf("expected one persisted patch, got %d", len(repo.applied))
	}
	if len(events.events) != 1 || events.events[0].Source != billingevents.SourcePlanChange {
		t.Fatalf("expected one plan_change event, got %+v", events.events)
	}
}

func TestChangePlanSurfacesVersionConflict(t *testing.T) {
	org := &models.Organization{
		ID:            uuid.New(),
		PlanID:        enums.PlanFree,
		BillingStatus: enums.BillingStatusActive,
	}
	repo := &stubRepo{
		org: org,
		applyFn: func(uuid.UUID, int64, billingstate.Patch) error {
			return pkgerrors.New(pkgerrors.CodeConflict, "billing state changed concurrently")
		},
	}
	svc := newTestService(t, repo, &stubStripe{}, nil)

	_, err := svc.ChangePlan(context.Background(), org.ID, enums.PlanStarter, true)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("version conflicts must be retryable")
	}
}

func TestCheckoutRejectsFreePlan(t *testing.T) {
	org := &models.Organization{ID: uuid.New(), PlanID: enums.PlanFree, BillingStatus: enums.BillingStatusActive}
	svc := newTestService(t, &stubRepo{org: org}, &stubStripe{}, nil)

	_, err := svc.CreateCheckoutSession(context.Background(), org.ID, enums.PlanFree, true)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCheckoutStampsMetadataAndTrial(t *testing.T) {
	org := &models.Organization{ID: uuid.New(), PlanID: enums.PlanFree, BillingStatus: enums.BillingStatusActive}
	client := &stubStripe{}
	svc := newTestService(t, &stubRepo{org: org}, client, nil)

	session, err := svc.CreateCheckoutSession(context.Background(), org.ID, enums.PlanPro, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.URL == "" {
		t.Fatal("expected redirect url")
	}
	if client.customersMade != 1 {
		t.Fatalf("expected one customer created, got %d", client.customersMade)
	}
	params := client.checkoutParams
	if params.SubscriptionData == nil || params.SubscriptionData.Metadata[MetadataOrgIDKey] != org.ID.String() {
		t.Fatal("organization id must be stamped into subscription metadata")
	}
	if params.SubscriptionData.Metadata[MetadataPlanIDKey] != string(enums.PlanPro) {
		t.Fatal("plan id must be stamped into subscription metadata")
	}
	if params.SubscriptionData.TrialPeriodDays == nil || *params.SubscriptionData.TrialPeriodDays != 14 {
		t.Fatal("first checkout for a trial plan must carry the trial period")
	}
}

func TestCheckoutSkipsTrialWhenAlreadyUsed(t *testing.T) {
	ended := time.Now().UTC().Add(-30 * 24 * time.Hour)
	custID := "cus_existing"
	org := &models.Organization{
		ID:                     uuid.New(),
		PlanID:                 enums.PlanFree,
		BillingStatus:          enums.BillingStatusActive,
		TrialEndedAt:           &ended,
		SubscriptionCustomerID: &custID,
	}
	client := &stubStripe{}
	svc := newTestService(t, &stubRepo{org: org}, client, nil)

	if _, err := svc.CreateCheckoutSession(context.Background(), org.ID, enums.PlanPro, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.customersMade != 0 {
		t.Fatal("existing customer must be reused")
	}
	if client.checkoutParams.SubscriptionData.TrialPeriodDays != nil {
		t.Fatal("a used trial must never be offered again at checkout")
	}
}

func TestPortalRequiresBillingProfile(t *testing.T) {
	org := &models.Organization{ID: uuid.New(), PlanID: enums.PlanFree, BillingStatus: enums.BillingStatusActive}
	svc := newTestService(t, &stubRepo{org: org}, &stubStripe{}, nil)

	_, err := svc.CreatePortalSession(context.Background(), org.ID, true)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestListInvoicesEmptyWithoutCustomer(t *testing.T) {
	org := &models.Organization{ID: uuid.New(), PlanID: enums.PlanFree, BillingStatus: enums.BillingStatusActive}
	svc := newTestService(t, &stubRepo{org: org}, &stubStripe{}, nil)

	invoices, err := svc.ListInvoices(context.Background(), org.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("expected empty history, got %d invoices", len(invoices))
	}
}

func TestListInvoicesMapsProcessorFields(t *testing.T) {
	custID := "cus_1"
	org := &models.Organization{
		ID:                     uuid.New(),
		PlanID:                 enums.PlanStarter,
		BillingStatus:          enums.BillingStatusActive,
		SubscriptionCustomerID: &custID,
	}
	created := time.Now().UTC().Add(-24 * time.Hour).Unix()
	client := &stubStripe{invoices: []*stripe.Invoice{
		{
			ID:               "in_1",
			Number:           "LUM-0001",
			Status:           stripe.InvoiceStatusPaid,
			Total:            2900,
			Currency:         stripe.CurrencyUSD,
			Created:          created,
			HostedInvoiceURL: "https://invoices.example/in_1",
		},
	}}
	svc := newTestService(t, &stubRepo{org: org}, client, nil)

	invoices, err := svc.ListInvoices(context.Background(), org.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(invoices) != 1 {
		t.Fatalf("expected one invoice, got %d", len(invoices))
	}
	if invoices[0].Total != 2900 || invoices[0].Status != "paid" {
		t.Fatalf("invoice fields not mapped: %+v", invoices[0])
	}
	if invoices[0].CreatedAt.Unix() != created {
		t.Fatal("created timestamp not mapped")
	}
}
