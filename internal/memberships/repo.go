package memberships

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teamlumen/lumen-backend/pkg/db/models"
	"github.com/teamlumen/lumen-backend/pkg/enums"
)

// Repository reads membership roles and page grant rows. Memberships and
// grants are written by the external identity collaborator; this side only
// consumes them for gating.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// UserHasRole reports whether the user holds one of the provided roles in the
// organization.
func (r *Repository) UserHasRole(ctx context.Context, userID, orgID uuid.UUID, roles ...enums.MemberRole) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrganizationMembership{}).
		Where("user_id = ? AND organization_id = ? AND role IN ?", userID, orgID, roles).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GrantsForUser returns the user's explicit page grant rows keyed by page.
// Pages without a row are absent from the map; gating treats absence as
// allowed.
func (r *Repository) GrantsForUser(ctx context.Context, userID, orgID uuid.UUID) (map[enums.PageKey]bool, error) {
	var rows []models.PagePermission
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ?", userID, orgID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	grants := make(map[enums.PageKey]bool, len(rows))
	for _, row := range rows {
		grants[row.Page] = row.Allowed
	}
	return grants, nil
}
