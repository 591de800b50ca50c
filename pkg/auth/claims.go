package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/teamlumen/lumen-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID           uuid.UUID
	ActiveOrgID      *uuid.UUID
	Role             enums.MemberRole
	PlatformOperator bool
	JTI              string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID           uuid.UUID        `json:"user_id"`
	ActiveOrgID      *uuid.UUID       `json:"active_org_id,omitempty"`
	Role             enums.MemberRole `json:"role"`
	PlatformOperator bool             `json:"platform_operator,omitempty"`
	jwt.RegisteredClaims
}
