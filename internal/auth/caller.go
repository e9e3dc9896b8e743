package auth

import (
	"github.com/google/uuid"

	"github.com/corkboard/backend/internal/errdef"
	"github.com/corkboard/backend/internal/models"
)

// Caller is the authenticated identity attached to a request by the JWT middleware.
type Caller struct {
	UserID uuid.UUID
	Email  string
	Role   models.Role
}

// AdminIdentity is proof that the caller holds the admin role.
// It can only be obtained through RequireAdmin.
type AdminIdentity struct {
	UserID uuid.UUID
}

// RequireAdmin returns the caller's admin identity, or a Forbidden error.
func RequireAdmin(c Caller) (AdminIdentity, error) {
	if c.UserID == uuid.Nil {
		return AdminIdentity{}, errdef.NewUnauthenticated("missing caller identity")
	}
	if c.Role != models.RoleAdmin {
		return AdminIdentity{}, errdef.NewForbidden("admin role required")
	}
	return AdminIdentity{UserID: c.UserID}, nil
}
