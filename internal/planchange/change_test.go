package planchange

import (
	"testing"
	"time"

	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
	"github.com/teamlumen/lumen-backend/pkg/plans"
)

var catalog = plans.NewCatalog(plans.Config{
	StarterPriceID: "price_starter",
	ProPriceID:     "price_pro",
})

func timePtr(t time.Time) *time.Time { return &t }

func TestChangePlanRequiresBillingManager(t *testing.T) {
	now := time.Now().UTC()
	org := &models.Organization{PlanID: enums.PlanFree, BillingStatus: enums.BillingStatusActive}
	_, err := ChangePlan(catalog, org, false, enums.PlanPro, now)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestChangePlanRejectsUnknownPlan(t *testing.T) {
	now := time.Now().UTC()
	org := &models.Organization{PlanID: enums.PlanFree, BillingStatus: enums.BillingStatusActive}
	_, err := ChangePlan(catalog, org, true, "enterprise", now)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// First-ever move to a trial-bearing plan starts the one allowed trial.
func TestChangePlanStartsTrialOnFirstProUpgrade(t *testing.T) {
	now := time.Now().UTC()
	org := &models.Organization{PlanID: enums.PlanFree, BillingStatus: enums.BillingStatusActive}
	patch, err := ChangePlan(catalog, org, true, enums.PlanPro, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.PlanID != enums.PlanPro {
		t.Fatalf("plan: got %s, want pro", patch.PlanID)
	}
	if patch.BillingStatus != enums.BillingStatusTrialing {
		t.Fatalf("status: got %s, want trialing", patch.BillingStatus)
	}
	if patch.TrialStartedAt == nil || !patch.TrialStartedAt.Equal(now) {
		t.Fatal("trial start not stamped")
	}
	want := now.Add(14 * 24 * time.Hour)
	if patch.TrialEndsAt == nil || !patch.TrialEndsAt.Equal(want) {
		t.Fatalf("trial end: got %v, want %s", patch.TrialEndsAt, want)
	}
	if patch.TrialPlanID == nil || *patch.TrialPlanID != enums.PlanPro {
		t.Fatal("trial plan not recorded")
	}
	if patch.TrialEndedAt != nil {
		t.Fatal("trial ended marker must stay unset while trialing")
	}
}

// Re-requesting the same plan mid-trial must not restart the trial clock.
func TestChangePlanMidTrialIsNoOp(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-5 * 24 * time.Hour)
	ends := started.Add(14 * 24 * time.Hour)
	pro := enums.PlanPro
	org := &models.Organization{
		PlanID:         enums.PlanPro,
		BillingStatus:  enums.BillingStatusTrialing,
		TrialStartedAt: &started,
		TrialEndsAt:    &ends,
		TrialPlanID:    &pro,
	}
	patch, err := ChangePlan(catalog, org, true, enums.PlanPro, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.BillingStatus != enums.BillingStatusTrialing {
		t.Fatalf("status: got %s, want trialing", patch.BillingStatus)
	}
	if patch.TrialEndsAt == nil || !patch.TrialEndsAt.Equal(ends) {
		t.Fatalf("trial end moved: got %v, want %s", patch.TrialEndsAt, ends)
	}
	if patch.TrialStartedAt == nil || !patch.TrialStartedAt.Equal(started) {
		t.Fatal("trial start moved")
	}
}

// Once a trial has concluded, no later plan change may start another one.
func TestChangePlanNeverRestartsUsedTrial(t *testing.T) {
	now := time.Now().UTC()
	ended := now.Add(-30 * 24 * time.Hour)
	pro := enums.PlanPro
	org := &models.Organization{
		PlanID:        enums.PlanFree,
		BillingStatus: enums.BillingStatusActive,
		TrialPlanID:   &pro,
		TrialEndedAt:  &ended,
	}
	patch, err := ChangePlan(catalog, org, true, enums.PlanPro, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.BillingStatus != enums.BillingStatusActive {
		t.Fatalf("status: got %s, want active", patch.BillingStatus)
	}
	if patch.TrialEndedAt == nil || !patch.TrialEndedAt.Equal(ended) {
		t.Fatal("trial ended marker must survive plan changes")
	}
	if patch.TrialEndsAt != nil {
		t.Fatal("no new trial window may be opened")
	}
}

func TestChangePlanWithoutTrialGoesStraightToActive(t *testing.T) {
	now := time.Now().UTC()
	org := &models.Organization{PlanID: enums.PlanFree, BillingStatus: enums.BillingStatusActive}
	patch, err := ChangePlan(catalog, org, true, enums.PlanStarter, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.PlanID != enums.PlanStarter || patch.BillingStatus != enums.BillingStatusActive {
		t.Fatalf("got %s/%s, want starter/active", patch.PlanID, patch.BillingStatus)
	}
	if patch.TrialStartedAt != nil || patch.TrialEndsAt != nil {
		t.Fatal("starter must not open a trial window")
	}
}

// Moving back to the default plan clears the trial window and processor
// linkage but keeps the historical trial audit fields.
func TestChangePlanToDefaultClearsLinkage(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(-2 * 24 * time.Hour)
	ends := now.Add(12 * 24 * time.Hour)
	pro := enums.PlanPro
	provider := enums.SubscriptionProviderStripe
	subID := "sub_123"
	org := &models.Organization{
		PlanID:               enums.PlanPro,
		BillingStatus:        enums.BillingStatusTrialing,
		TrialStartedAt:       &started,
		TrialEndsAt:          &ends,
		TrialPlanID:          &pro,
		SubscriptionProvider: &provider,
		SubscriptionID:       &subID,
	}
	patch, err := ChangePlan(catalog, org, true, enums.PlanFree, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.PlanID != enums.PlanFree || patch.BillingStatus != enums.BillingStatusActive {
		t.Fatalf("got %s/%s, want free/active", patch.PlanID, patch.BillingStatus)
	}
	if patch.TrialEndsAt != nil {
		t.Fatal("trial window must be closed")
	}
	if patch.TrialStartedAt == nil || patch.TrialPlanID == nil {
		t.Fatal("historical trial fields must be kept")
	}
	if patch.SubscriptionProvider != nil || patch.SubscriptionID != nil {
		t.Fatal("processor linkage must be cleared")
	}
}

func TestDowngradeToFreeClearsCancellationAndLinkage(t *testing.T) {
	now := time.Now().UTC()
	provider := enums.SubscriptionProviderStripe
	subID := "sub_456"
	custID := "cus_456"
	org := &models.Organization{
		PlanID:                  enums.PlanStarter,
		BillingStatus:           enums.BillingStatusActive,
		CancellationEffectiveAt: timePtr(now.Add(10 * 24 * time.Hour)),
		SubscriptionProvider:    &provider,
		SubscriptionID:          &subID,
		SubscriptionCustomerID:  &custID,
	}
	patch := DowngradeToFree(catalog, org)
	if patch.PlanID != enums.PlanFree || patch.BillingStatus != enums.BillingStatusActive {
		t.Fatalf("got %s/%s, want free/active", patch.PlanID, patch.BillingStatus)
	}
	if patch.CancellationEffectiveAt != nil {
		t.Fatal("pending cancellation must be cleared")
	}
	if patch.SubscriptionProvider != nil || patch.SubscriptionID != nil || patch.SubscriptionCustomerID != nil {
		t.Fatal("processor linkage must be cleared")
	}
}
