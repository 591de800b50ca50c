package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/teamlumen/lumen-backend/internal/billing"
	"github.com/teamlumen/lumen-backend/internal/billingevents"
	"github.com/teamlumen/lumen-backend/internal/billingstate"
	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
)

type stubBillingRepo struct {
	org     *models.Organization
	applied []billingstate.Patch
	applyFn func(orgID uuid.UUID, fromVersion int64, patch billingstate.Patch) error
}

func (s *stubBillingRepo) WithTx(tx *gorm.DB) billing.Repository { return s }
func (s *stubBillingRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	if s.org != nil && s.org.ID == id {
		return s.org, nil
	}
	return nil, nil
}
func (s *stubBillingRepo) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Organization, error) {
	if s.org != nil && s.org.SubscriptionID != nil && *s.org.SubscriptionID == subscriptionID {
		return s.org, nil
	}
	return nil, nil
}
func (s *stubBillingRepo) FindByCustomerID(ctx context.Context, customerID string) (*models.Organization, error) {
	if s.org != nil && s.org.SubscriptionCustomerID != nil && *s.org.SubscriptionCustomerID == customerID {
		return s.org, nil
	}
	return nil, nil
}
func (s *stubBillingRepo) ApplyBillingPatch(ctx context.Context, orgID uuid.UUID, fromVersion int64, patch billingstate.Patch) error {
	if s.applyFn != nil {
		return s.applyFn(orgID, fromVersion, patch)
	}
	s.applied = append(s.applied, patch)
	return nil
}
func (s *stubBillingRepo) SetCustomerID(ctx context.Context, orgID uuid.UUID, customerID string) error {
	return nil
}

type stubFetcher struct {
	sub   *stripe.Subscription
	calls int
}

func (s *stubFetcher) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	s.calls++
	return s.sub, nil
}

type stubEvents struct {
	events []billingevents.Event
}

func (s *stubEvents) BillingChanged(ctx context.Context, event billingevents.Event) {
	s.events = append(s.events, event)
}

func subscriptionEventPayload(t *testing.T, sub *stripe.Subscription, eventType stripe.EventType) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal subscription: %v", err)
	}
	return &stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestService_SubscriptionEventResolvesByMetadata(t *testing.T) {
	org := &models.Organization{
		ID:            uuid.New(),
		PlanID:        enums.PlanFree,
		BillingStatus: enums.BillingStatusActive,
	}
	repo := &stubBillingRepo{org: org}
	events := &stubEvents{}
	service, err := NewService(ServiceParams{
		BillingRepo:  repo,
		Catalog:      catalog,
		StripeClient: &stubFetcher{},
		Events:       events,
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	sub := &stripe.Subscription{
		ID:       "sub_meta",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_meta"},
		Metadata: map[string]string{metadataOrgIDKey: org.ID.String()},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).Unix(),
				Price:            &stripe.Price{ID: "price_starter"},
			}},
		},
	}
	event := subscriptionEventPayload(t, sub, stripe.EventTypeCustomerSubscriptionCreated)

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(repo.applied) != 1 {
		t.Fatalf("expected one patch, got %d", len(repo.applied))
	}
	if repo.applied[0].PlanID != enums.PlanStarter {
		t.Fatalf("plan: got %s, want starter", repo.applied[0].PlanID)
	}
	if len(events.events) != 1 || events.events[0].Source != billingevents.SourceWebhook {
		t.Fatalf("expected one webhook event, got %+v", events.events)
	}
}

func TestService_SubscriptionEventFallsBackToStoredSubscriptionID(t *testing.T) {
	subID := "sub_known"
	org := &models.Organization{
		ID:             uuid.New(),
		PlanID:         enums.PlanPro,
		BillingStatus:  enums.BillingStatusActive,
		SubscriptionID: &subID,
	}
	repo := &stubBillingRepo{org: org}
	service, _ := NewService(ServiceParams{
		BillingRepo:  repo,
		Catalog:      catalog,
		StripeClient: &stubFetcher{},
	})

	// Metadata absent: correlation must come from the stored subscription id.
	sub := &stripe.Subscription{
		ID:     "sub_known",
		Status: stripe.SubscriptionStatusCanceled,
	}
	event := subscriptionEventPayload(t, sub, stripe.EventTypeCustomerSubscriptionDeleted)

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(repo.applied) != 1 {
		t.Fatalf("expected one patch, got %d", len(repo.applied))
	}
	if repo.applied[0].BillingStatus != enums.BillingStatusCanceled {
		t.Fatalf("status: got %s, want canceled", repo.applied[0].BillingStatus)
	}
	if repo.applied[0].PlanID != enums.PlanFree {
		t.Fatalf("plan: got %s, want free", repo.applied[0].PlanID)
	}
}

// Uncorrelatable events are acknowledged so Stripe stops redelivering them.
func TestService_UncorrelatableEventIsDropped(t *testing.T) {
	repo := &stubBillingRepo{}
	service, _ := NewService(ServiceParams{
		BillingRepo:  repo,
		Catalog:      catalog,
		StripeClient: &stubFetcher{},
	})

	sub := &stripe.Subscription{ID: "sub_ghost", Status: stripe.SubscriptionStatusActive}
	event := subscriptionEventPayload(t, sub, stripe.EventTypeCustomerSubscriptionUpdated)

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected ack for uncorrelatable event, got %v", err)
	}
	if len(repo.applied) != 0 {
		t.Fatal("uncorrelatable event must not write")
	}
}

// A version conflict propagates as an error so the delivery is retried.
func TestService_VersionConflictPropagates(t *testing.T) {
	org := &models.Organization{
		ID:            uuid.New(),
		PlanID:        enums.PlanFree,
		BillingStatus: enums.BillingStatusActive,
	}
	repo := &stubBillingRepo{
		org: org,
		applyFn: func(uuid.UUID, int64, billingstate.Patch) error {
			return pkgerrors.New(pkgerrors.CodeConflict, "billing state changed concurrently")
		},
	}
	service, _ := NewService(ServiceParams{
		BillingRepo:  repo,
		Catalog:      catalog,
		StripeClient: &stubFetcher{},
	})

	sub := &stripe.Subscription{
		ID:       "sub_race",
		Status:   stripe.SubscriptionStatusActive,
		Metadata: map[string]string{metadataOrgIDKey: org.ID.String()},
	}
	event := subscriptionEventPayload(t, sub, stripe.EventTypeCustomerSubscriptionUpdated)

	err := service.HandleEvent(context.Background(), event)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestService_InvoiceEventFetchesSubscription(t *testing.T) {
	subID := "sub_invoice"
	org := &models.Organization{
		ID:             uuid.New(),
		PlanID:         enums.PlanStarter,
		BillingStatus:  enums.BillingStatusActive,
		SubscriptionID: &subID,
	}
	repo := &stubBillingRepo{org: org}
	fetcher := &stubFetcher{sub: &stripe.Subscription{
		ID:     subID,
		Status: stripe.SubscriptionStatusPastDue,
	}}
	service, _ := NewService(ServiceParams{
		BillingRepo:  repo,
		Catalog:      catalog,
		StripeClient: fetcher,
	})

	// Signature verification populates Data.Object alongside the raw payload;
	// the router reads the subscription id from the object map.
	raw, _ := json.Marshal(map[string]any{"subscription": subID})
	event := &stripe.Event{
		Type: stripe.EventTypeInvoicePaymentFailed,
		Data: &stripe.EventData{
			Raw:    raw,
			Object: map[string]interface{}{"subscription": subID},
		},
	}

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.calls)
	}
	if len(repo.applied) != 1 || repo.applied[0].BillingStatus != enums.BillingStatusActive {
		t.Fatalf("past_due must map to active, got %+v", repo.applied)
	}
}

func TestService_UnknownEventTypeIsNoOp(t *testing.T) {
	repo := &stubBillingRepo{}
	service, _ := NewService(ServiceParams{
		BillingRepo:  repo,
		Catalog:      catalog,
		StripeClient: &stubFetcher{},
	})

	event := &stripe.Event{
		Type: stripe.EventType("charge.refunded"),
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown event types must be acknowledged, got %v", err)
	}
	if len(repo.applied) != 0 {
		t.Fatal("unknown event types must not write")
	}
}

type memoryIdempotencyStore struct {
	data map[string]string
}

func (m *memoryIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	return m.data[key], nil
}
func (m *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.data == nil {
		m.data = map[string]string{}
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = "1"
	return true, nil
}
func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "lumen:idempotency:" + scope + ":" + id
}
func (m *memoryIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func TestIdempotencyGuardMarksDuplicates(t *testing.T) {
	guard, err := NewIdempotencyGuard(&memoryIdempotencyStore{}, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}

	seen, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || seen {
		t.Fatalf("first delivery must be fresh, seen=%v err=%v", seen, err)
	}
	seen, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || !seen {
		t.Fatalf("second delivery must be a duplicate, seen=%v err=%v", seen, err)
	}

	if err := guard.Delete(context.Background(), "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, _ = guard.CheckAndMark(context.Background(), "evt_1")
	if seen {
		t.Fatal("deleting the mark must allow reprocessing")
	}
}
