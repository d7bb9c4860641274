// Package bootstrap ensures the default roles and the administrator account
// exist before the server starts accepting requests. Every step is idempotent
// and safe to run from multiple instances at once.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillcms/quill/internal/identity"
	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
	"github.com/quillcms/quill/jobs"
)

// Config carries the administrator credentials supplied via environment.
type Config struct {
	AdminEmail    string
	AdminPassword string
}

// RoleSeed names a role and the grants it starts with.
type RoleSeed struct {
	Name   string
	Grants []rbac.Grant
}

// DefaultRoles returns the roles provisioned on first start. Existing roles
// are left untouched so operators can adjust grants after the fact.
func DefaultRoles() []RoleSeed {
	return []RoleSeed{
		{
			Name: "System Admin",
			Grants: []rbac.Grant{
				{Name: rbac.PermRolesManage, Level: rbac.LevelRolesManage},
				{Name: rbac.PermRolesView, Level: rbac.LevelRolesView},
				{Name: identity.PermUsersView, Level: identity.LevelUsersView},
				{Name: jobs.PermJobsManage, Level: jobs.LevelJobsManage},
			},
		},
		{
			Name: "Editor",
			Grants: []rbac.Grant{
				{Name: "articles.publish", Level: 2},
				{Name: "articles.edit", Level: 1},
			},
		},
		{
			Name: "Viewer",
			Grants: []rbac.Grant{
				{Name: "articles.read", Level: 1},
			},
		},
	}
}

// Run provisions the default roles and the administrator account.
func Run(ctx context.Context, roles *rbac.Manager, accounts identity.Repository, logger *slog.Logger, cfg Config) error {
	if logger == nil {
		logger = slog.Default()
	}

	var adminRoleID uuid.UUID
	for _, seed := range DefaultRoles() {
		id, err := ensureRole(ctx, roles, seed)
		if err != nil {
			return fmt.Errorf("bootstrap: ensure role %q: %w", seed.Name, err)
		}
		if seed.Name == "System Admin" {
			adminRoleID = id
		}
	}

	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return fmt.Errorf("bootstrap: admin credentials are not configured")
	}

	user, created, err := ensureAdmin(ctx, accounts, adminRoleID, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: ensure admin: %w", err)
	}
	if created {
		logger.Info("bootstrap created administrator account", slog.String("email", user.Email))
	} else {
		logger.Debug("administrator account already present", slog.String("email", user.Email))
	}
	return nil
}

// ensureRole creates the role with its grants when absent. Two instances
// racing on the same name both end up observing the same role: the loser of
// the unique-constraint race re-reads the winner's row.
func ensureRole(ctx context.Context, roles *rbac.Manager, seed RoleSeed) (uuid.UUID, error) {
	existing, err := roles.GetRoleByName(ctx, seed.Name)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	id, err := roles.CreateRoleWithPermissions(ctx, seed.Name, seed.Grants)
	if err != nil {
		if rbac.IsUniqueViolation(err) {
			winner, ferr := roles.GetRoleByName(ctx, seed.Name)
			if ferr != nil {
				return uuid.Nil, ferr
			}
			if winner != nil {
				return winner.ID, nil
			}
		}
		return uuid.Nil, err
	}
	return id, nil
}

func ensureAdmin(ctx context.Context, accounts identity.Repository, roleID uuid.UUID, cfg Config) (*identity.User, bool, error) {
	existing, err := accounts.FindByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, err
	}

	// Create is insert-or-fetch on the email unique constraint, so a
	// concurrent bootstrap cannot produce a duplicate administrator.
	user, created, err := accounts.Create(ctx, identity.CreateUserParams{
		Email:        cfg.AdminEmail,
		PasswordHash: string(hash),
		RoleID:       roleID,
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}
