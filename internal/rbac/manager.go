package rbac

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quillcms/quill/internal/shared"
)

// Manager is the authorization decision engine built on the permission store.
// It holds no in-process mutable state; every query reads current store
// contents.
type Manager struct {
	store  Store
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewManager constructs a Manager. audit may be nil to disable audit logging.
func NewManager(store Store, audit shared.AuditRecorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, audit: audit, logger: logger}
}

// CreateRoleWithPermissions creates a role and attaches every grant inside a
// single transaction: either the role exists with its full permission set or
// nothing was written. A partially-initialized role is an authorization
// hazard, so partial failure is not allowed to commit.
func (m *Manager) CreateRoleWithPermissions(ctx context.Context, name string, grants []Grant) (uuid.UUID, error) {
	var roleID uuid.UUID
	err := m.store.WithTx(ctx, func(tx Store) error {
		id, err := tx.InsertRole(ctx, name)
		if err != nil {
			return err
		}
		roleID = id
		for _, g := range grants {
			if err := tx.InsertPermission(ctx, id, g.Name, g.Level); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("create role with permissions", slog.String("role", name), slog.Any("error", err))
		return uuid.Nil, err
	}
	m.recordAudit(ctx, "role.create", roleID, map[string]any{"name": name, "grants": len(grants)})
	return roleID, nil
}

// AddPermissions attaches grants to an existing role, all inside one
// transaction.
func (m *Manager) AddPermissions(ctx context.Context, roleID uuid.UUID, grants []Grant) error {
	err := m.store.WithTx(ctx, func(tx Store) error {
		for _, g := range grants {
			if err := tx.InsertPermission(ctx, roleID, g.Name, g.Level); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("add permissions", slog.String("role_id", roleID.String()), slog.Any("error", err))
		return err
	}
	m.recordAudit(ctx, "role.permissions.add", roleID, map[string]any{"grants": len(grants)})
	return nil
}

// RemovePermissions deletes each named permission from the role. Every
// deletion is independent and idempotent; a name that was never attached is
// silently a no-op.
func (m *Manager) RemovePermissions(ctx context.Context, roleID uuid.UUID, names []string) error {
	for _, name := range names {
		if err := m.store.DeletePermission(ctx, roleID, name); err != nil {
			m.logger.Error("remove permission",
				slog.String("role_id", roleID.String()),
				slog.String("permission", name),
				slog.Any("error", err))
			return err
		}
	}
	m.recordAudit(ctx, "role.permissions.remove", roleID, map[string]any{"names": names})
	return nil
}

// GetRole fetches a role by ID; a missing role yields (nil, nil).
func (m *Manager) GetRole(ctx context.Context, roleID uuid.UUID) (*Role, error) {
	return m.store.GetRole(ctx, roleID)
}

// GetRoleByName fetches a role by name; a missing role yields (nil, nil).
func (m *Manager) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return m.store.GetRoleByName(ctx, name)
}

// ListPermissions returns all permissions attached to the role.
func (m *Manager) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]RolePermission, error) {
	return m.store.ListPermissions(ctx, roleID)
}

// HasPermission reports whether the role holds the named permission at
// exactly the required level. Levels are discrete tags, not a hierarchy: a
// stored level above the requested one does not grant access. Absence of the
// permission is false, never an error; a store failure surfaces as an
// *AuthorizationError so callers can distinguish "denied" from "unknown".
func (m *Manager) HasPermission(ctx context.Context, roleID uuid.UUID, name string, level int64) (bool, error) {
	perms, err := m.store.ListPermissions(ctx, roleID)
	if err != nil {
		m.logger.Error("has permission",
			slog.String("role_id", roleID.String()),
			slog.String("permission", name),
			slog.Any("error", err))
		return false, &AuthorizationError{Err: err}
	}
	for _, p := range perms {
		if p.PermissionName == name {
			return p.PermissionLevel == level, nil
		}
	}
	return false, nil
}

func (m *Manager) recordAudit(ctx context.Context, action string, roleID uuid.UUID, meta map[string]any) {
	if m.audit == nil {
		return
	}
	entry := shared.AuditLog{
		Action:   action,
		Entity:   "role",
		EntityID: roleID.String(),
		Meta:     meta,
	}
	if err := m.audit.Record(ctx, entry); err != nil {
		m.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
