package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is a principal. Each user references exactly one role; there is no
// multi-role composition in this model.
type User struct {
	ID          uuid.UUID
	Email       string
	Password    string // bcrypt hash, never serialized
	Role        uuid.UUID
	Active      bool
	MFAEnabled  bool
	MFAVerified bool
	MFASecret   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GetID implements rbac.Principal.
func (u *User) GetID() uuid.UUID { return u.ID }

// GetEmail implements rbac.Principal.
func (u *User) GetEmail() string { return u.Email }

// GetRole implements rbac.Principal.
func (u *User) GetRole() uuid.UUID { return u.Role }

// IsActive implements rbac.Principal.
func (u *User) IsActive() bool { return u.Active }
