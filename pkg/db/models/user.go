package models

import (
	"time"

	"github.com/google/uuid"
)

// User carries the minimal identity surface this service reads. Account
// lifecycle and credentials are owned by the external identity collaborator.
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email string    `gorm:"column:email;not null;unique"`
	Name  string    `gorm:"column:name;not null"`
	// PlatformOperator marks a super-operator who may administer billing for
	// any organization without holding a membership.
	PlatformOperator bool      `gorm:"column:platform_operator;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
