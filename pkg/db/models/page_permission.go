package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/teamlumen/lumen-backend/pkg/enums"
)

// PagePermission is an explicit per-user grant row for a gated page. Absence of
// a row means the member defaults to allowed; an explicit false revokes access.
// The plan's feature gate is always applied on top regardless of grants.
type PagePermission struct {
	ID             uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizationID uuid.UUID     `gorm:"column:organization_id;type:uuid;not null;index"`
	UserID         uuid.UUID     `gorm:"column:user_id;type:uuid;not null;index"`
	Page           enums.PageKey `gorm:"column:page;type:page_key;not null"`
	Allowed        bool          `gorm:"column:allowed;not null;default:true"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
