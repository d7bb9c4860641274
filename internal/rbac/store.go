package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillcms/quill/internal/platform/db"
)

// Store provides durable CRUD for roles and their permissions. Every failure
// it returns is a *StoreError; absence is reported as a nil role or an empty
// slice, never as an error.
type Store interface {
	InsertRole(ctx context.Context, name string) (uuid.UUID, error)
	InsertPermission(ctx context.Context, roleID uuid.UUID, name string, level int64) error
	DeletePermission(ctx context.Context, roleID uuid.UUID, name string) error
	GetRole(ctx context.Context, roleID uuid.UUID) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListPermissions(ctx context.Context, roleID uuid.UUID) ([]RolePermission, error)
	// WithTx runs fn against a store whose operations share one transaction;
	// fn returning an error rolls back everything it did.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
	q    querier
}

// NewStore constructs a PostgreSQL-backed Store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, q: pool}
}

// InsertRole creates a role and returns its generated identifier.
func (s *PGStore) InsertRole(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.q.QueryRow(ctx, `INSERT INTO roles (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return uuid.Nil, &StoreError{Op: "insert role", Err: err}
	}
	return id, nil
}

// InsertPermission appends one permission row under an existing role.
func (s *PGStore) InsertPermission(ctx context.Context, roleID uuid.UUID, name string, level int64) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO roles_permissions (role_id, permission_name, permission_level) VALUES ($1, $2, $3)`,
		roleID, name, level)
	if err != nil {
		return &StoreError{Op: "insert permission", Err: err}
	}
	return nil
}

// DeletePermission removes every row matching (roleID, name). Deleting a
// permission that was never attached is a no-op, not an error.
func (s *PGStore) DeletePermission(ctx context.Context, roleID uuid.UUID, name string) error {
	_, err := s.q.Exec(ctx,
		`DELETE FROM roles_permissions WHERE role_id = $1 AND permission_name = $2`,
		roleID, name)
	if err != nil {
		return &StoreError{Op: "delete permission", Err: err}
	}
	return nil
}

// GetRole fetches a role by ID. A missing role yields (nil, nil).
func (s *PGStore) GetRole(ctx context.Context, roleID uuid.UUID) (*Role, error) {
	return s.getRole(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE id = $1`, roleID)
}

// GetRoleByName fetches a role by name. A missing role yields (nil, nil).
func (s *PGStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.getRole(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE name = $1`, name)
}

func (s *PGStore) getRole(ctx context.Context, query string, arg any) (*Role, error) {
	var role Role
	err := s.q.QueryRow(ctx, query, arg).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &StoreError{Op: "get role", Err: err}
	}
	return &role, nil
}

// ListPermissions returns all permissions for a role in insertion order.
// Insertion order is the store's explicit iteration contract so that
// first-match lookups are deterministic.
func (s *PGStore) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]RolePermission, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, role_id, permission_name, permission_level, created_at, updated_at
           FROM roles_permissions
          WHERE role_id = $1
          ORDER BY created_at, id`,
		roleID)
	if err != nil {
		return nil, &StoreError{Op: "list permissions", Err: err}
	}
	defer rows.Close()

	var perms []RolePermission
	for rows.Next() {
		var p RolePermission
		if err := rows.Scan(&p.ID, &p.RoleID, &p.PermissionName, &p.PermissionLevel, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, &StoreError{Op: "scan permission", Err: err}
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list permissions", Err: err}
	}
	return perms, nil
}

// WithTx runs fn against a transactional view of the store. Calling WithTx on
// a store that is already transactional reuses the open transaction.
func (s *PGStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{q: tx})
	})
	if err != nil {
		var storeErr *StoreError
		if errors.As(err, &storeErr) {
			return err
		}
		return &StoreError{Op: "transaction", Err: err}
	}
	return nil
}

var _ Store = (*PGStore)(nil)
