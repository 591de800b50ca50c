package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/teamlumen/lumen-backend/pkg/enums"
)

// OrganizationMembership links a user with an organization and captures their role.
type OrganizationMembership struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID        `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID         uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	Role           enums.MemberRole `gorm:"column:role;type:member_role;not null"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
