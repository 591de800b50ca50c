package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teamlumen/lumen-backend/internal/billingstate"
	"github.com/teamlumen/lumen-backend/pkg/db/models"
	pkgerrors "github.com/teamlumen/lumen-backend/pkg/errors"
)

// Repository handles organization billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Organization, error)
	FindByCustomerID(ctx context.Context, customerID string) (*models.Organization, error)
	ApplyBillingPatch(ctx context.Context, orgID uuid.UUID, fromVersion int64, patch billingstate.Patch) error
	SetCustomerID(ctx context.Context, orgID uuid.UUID, customerID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&org).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Organization, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	var org models.Organization
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		First(&org).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) FindByCustomerID(ctx context.Context, customerID string) (*models.Organization, error) {
	if customerID == "" {
		return nil, nil
	}
	var org models.Organization
	if err := r.db.WithContext(ctx).
		Where("subscription_customer_id = ?", customerID).
		First(&org).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

// ApplyBillingPatch replaces the organization's billing fields guarded by the
// version the writer read. A concurrent write bumps the version first and the
// predicate matches zero rows, which surfaces as a retryable conflict instead
// of a silent lost update.
func (r *repository) ApplyBillingPatch(ctx context.Context, orgID uuid.UUID, fromVersion int64, patch billingstate.Patch) error {
	updates := patch.Updates()
	updates["billing_version"] = fromVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ? AND billing_version = ?", orgID, fromVersion).
		Updates(updates)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "apply billing patch")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "billing state changed concurrently").
			WithDetails(map[string]any{"organization_id": orgID.String()})
	}
	return nil
}

// SetCustomerID records the external processor customer before any
// subscription exists, so a later portal session can resolve it. The write is
// deliberately narrow and does not bump the billing version.
func (r *repository) SetCustomerID(ctx context.Context, orgID uuid.UUID, customerID string) error {
	if customerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return r.db.WithContext(ctx).
		Model(&models.Organization{}).
		Where("id = ?", orgID).
		Update("subscription_customer_id", customerID).Error
}
