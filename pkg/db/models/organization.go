package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/teamlumen/lumen-backend/pkg/enums"
)

// Organization is the billable tenant. Plan and billing lifecycle fields live
// directly on the record; the derivation layer computes the effective view from
// them at read time, so none of these columns ever hold derived state.
type Organization struct {
	ID   uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name string    `gorm:"column:name;not null"`

	PlanID        enums.PlanID        `gorm:"column:plan_id;not null;default:'free'"`
	BillingStatus enums.BillingStatus `gorm:"column:billing_status;type:billing_status;not null;default:'active'"`

	TrialStartedAt *time.Time    `gorm:"column:trial_started_at"`
	TrialEndsAt    *time.Time    `gorm:"column:trial_ends_at"`
	TrialPlanID    *enums.PlanID `gorm:"column:trial_plan_id"`
	// TrialEndedAt is written exactly once, the first time a trial concludes.
	// Its presence permanently disables future trials for this organization.
	TrialEndedAt *time.Time `gorm:"column:trial_ended_at"`

	CancellationEffectiveAt *time.Time `gorm:"column:cancellation_effective_at"`

	SubscriptionProvider         *enums.SubscriptionProvider `gorm:"column:subscription_provider"`
	SubscriptionID               *string                     `gorm:"column:subscription_id;index"`
	SubscriptionCustomerID       *string                     `gorm:"column:subscription_customer_id;index"`
	SubscriptionPriceID          *string                     `gorm:"column:subscription_price_id"`
	SubscriptionCurrentPeriodEnd *time.Time                  `gorm:"column:subscription_current_period_end"`

	// BillingVersion guards billing writes: every patch is applied with a
	// WHERE billing_version = ? predicate and bumps the counter, so a plan
	// change racing a webhook reconciliation cannot silently lose an update.
	BillingVersion int64 `gorm:"column:billing_version;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
