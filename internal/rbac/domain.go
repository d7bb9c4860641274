package rbac

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role is a named grouping of permissions that users reference by ID.
type Role struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RolePermission is a single capability attached to a role. The level is an
// opaque integer tier; its meaning is defined by the caller, not enforced
// here.
type RolePermission struct {
	ID              uuid.UUID
	RoleID          uuid.UUID
	PermissionName  string
	PermissionLevel int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Grant is the (name, level) input pair used when attaching permissions.
type Grant struct {
	Name  string `json:"name" validate:"required"`
	Level int64  `json:"level" validate:"gte=0"`
}

// Principal describes the authenticated actor being authorized.
type Principal interface {
	GetID() uuid.UUID
	GetEmail() string
	GetRole() uuid.UUID
	IsActive() bool
}

// PrincipalSource resolves a principal by its identifier.
type PrincipalSource interface {
	PrincipalByID(ctx context.Context, id uuid.UUID) (Principal, error)
}
