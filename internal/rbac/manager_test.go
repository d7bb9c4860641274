package rbac_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// memStore is an in-memory Store with transactional WithTx semantics:
// mutations inside fn are staged on a copy and swapped in only on success.
type memStore struct {
	roles map[uuid.UUID]rbac.Role
	perms map[uuid.UUID][]rbac.RolePermission

	failErr      error  // when set, every operation fails with it
	failOnInsert string // fail when inserting a permission with this name
}

func newMemStore() *memStore {
	return &memStore{
		roles: make(map[uuid.UUID]rbac.Role),
		perms: make(map[uuid.UUID][]rbac.RolePermission),
	}
}

func (s *memStore) InsertRole(ctx context.Context, name string) (uuid.UUID, error) {
	if s.failErr != nil {
		return uuid.Nil, &rbac.StoreError{Op: "insert role", Err: s.failErr}
	}
	for _, r := range s.roles {
		if r.Name == name {
			return uuid.Nil, &rbac.StoreError{Op: "insert role", Err: &pgconn.PgError{Code: "23505"}}
		}
	}
	id := uuid.New()
	s.roles[id] = rbac.Role{ID: id, Name: name}
	return id, nil
}

func (s *memStore) InsertPermission(ctx context.Context, roleID uuid.UUID, name string, level int64) error {
	if s.failErr != nil {
		return &rbac.StoreError{Op: "insert permission", Err: s.failErr}
	}
	if s.failOnInsert != "" && s.failOnInsert == name {
		return &rbac.StoreError{Op: "insert permission", Err: errors.New("boom")}
	}
	if _, ok := s.roles[roleID]; !ok {
		return &rbac.StoreError{Op: "insert permission", Err: &pgconn.PgError{Code: "23503"}}
	}
	for _, p := range s.perms[roleID] {
		if p.PermissionName == name {
			return &rbac.StoreError{Op: "insert permission", Err: &pgconn.PgError{Code: "23505"}}
		}
	}
	s.perms[roleID] = append(s.perms[roleID], rbac.RolePermission{
		ID:              uuid.New(),
		RoleID:          roleID,
		PermissionName:  name,
		PermissionLevel: level,
	})
	return nil
}

func (s *memStore) DeletePermission(ctx context.Context, roleID uuid.UUID, name string) error {
	if s.failErr != nil {
		return &rbac.StoreError{Op: "delete permission", Err: s.failErr}
	}
	kept := s.perms[roleID][:0]
	for _, p := range s.perms[roleID] {
		if p.PermissionName != name {
			kept = append(kept, p)
		}
	}
	s.perms[roleID] = kept
	return nil
}

func (s *memStore) GetRole(ctx context.Context, roleID uuid.UUID) (*rbac.Role, error) {
	if s.failErr != nil {
		return nil, &rbac.StoreError{Op: "get role", Err: s.failErr}
	}
	if r, ok := s.roles[roleID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *memStore) GetRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	if s.failErr != nil {
		return nil, &rbac.StoreError{Op: "get role", Err: s.failErr}
	}
	for _, r := range s.roles {
		if r.Name == name {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]rbac.RolePermission, error) {
	if s.failErr != nil {
		return nil, &rbac.StoreError{Op: "list permissions", Err: s.failErr}
	}
	return append([]rbac.RolePermission(nil), s.perms[roleID]...), nil
}

func (s *memStore) WithTx(ctx context.Context, fn func(rbac.Store) error) error {
	staged := &memStore{
		roles:        make(map[uuid.UUID]rbac.Role, len(s.roles)),
		perms:        make(map[uuid.UUID][]rbac.RolePermission, len(s.perms)),
		failErr:      s.failErr,
		failOnInsert: s.failOnInsert,
	}
	for id, r := range s.roles {
		staged.roles[id] = r
	}
	for id, ps := range s.perms {
		staged.perms[id] = append([]rbac.RolePermission(nil), ps...)
	}
	if err := fn(staged); err != nil {
		return err
	}
	s.roles = staged.roles
	s.perms = staged.perms
	return nil
}

var _ rbac.Store = (*memStore)(nil)

type memAudit struct {
	entries []shared.AuditLog
}

func (a *memAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func grantSet(perms []rbac.RolePermission) map[string]int64 {
	set := make(map[string]int64, len(perms))
	for _, p := range perms {
		set[p.PermissionName] = p.PermissionLevel
	}
	return set
}

func newEditorRole(t *testing.T, m *rbac.Manager) uuid.UUID {
	t.Helper()
	id, err := m.CreateRoleWithPermissions(context.Background(), "Editor", []rbac.Grant{
		{Name: "articles.publish", Level: 2},
		{Name: "articles.edit", Level: 1},
	})
	require.NoError(t, err)
	return id
}

func TestCreateRoleWithPermissionsRoundTrip(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	m := rbac.NewManager(store, audit, nil)

	id := newEditorRole(t, m)

	role, err := m.GetRole(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, role)
	require.Equal(t, "Editor", role.Name)

	perms, err := m.ListPermissions(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"articles.publish": 2, "articles.edit": 1}, grantSet(perms))

	require.Len(t, audit.entries, 1)
	require.Equal(t, "role.create", audit.entries[0].Action)
	require.Equal(t, id.String(), audit.entries[0].EntityID)
}

func TestCreateRoleRollsBackOnPartialFailure(t *testing.T) {
	store := newMemStore()
	store.failOnInsert = "articles.edit"
	m := rbac.NewManager(store, nil, nil)

	_, err := m.CreateRoleWithPermissions(context.Background(), "Editor", []rbac.Grant{
		{Name: "articles.publish", Level: 2},
		{Name: "articles.edit", Level: 1},
	})
	require.Error(t, err)

	// Nothing may survive the failed transaction, including the role row.
	role, err := m.GetRoleByName(context.Background(), "Editor")
	require.NoError(t, err)
	require.Nil(t, role)
}

func TestHasPermissionExactLevel(t *testing.T) {
	store := newMemStore()
	m := rbac.NewManager(store, nil, nil)
	id := newEditorRole(t, m)

	ctx := context.Background()

	granted, err := m.HasPermission(ctx, id, "articles.edit", 1)
	require.NoError(t, err)
	require.True(t, granted)

	// Levels are discrete tags: a different level is a miss, not a subset.
	granted, err = m.HasPermission(ctx, id, "articles.edit", 2)
	require.NoError(t, err)
	require.False(t, granted)

	granted, err = m.HasPermission(ctx, id, "comments.delete", 0)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestHasPermissionUnknownRoleIsDenyNotError(t *testing.T) {
	store := newMemStore()
	m := rbac.NewManager(store, nil, nil)

	granted, err := m.HasPermission(context.Background(), uuid.New(), "articles.edit", 1)
	require.NoError(t, err)
	require.False(t, granted)
}

func TestHasPermissionStoreFailure(t *testing.T) {
	store := newMemStore()
	m := rbac.NewManager(store, nil, nil)
	id := newEditorRole(t, m)

	store.failErr = errors.New("connection refused")

	granted, err := m.HasPermission(context.Background(), id, "articles.edit", 1)
	require.False(t, granted)
	require.Error(t, err)

	var authzErr *rbac.AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	var storeErr *rbac.StoreError
	require.ErrorAs(t, err, &storeErr)
}

func TestRemovePermissionsIdempotent(t *testing.T) {
	store := newMemStore()
	m := rbac.NewManager(store, nil, nil)
	id := newEditorRole(t, m)

	ctx := context.Background()

	require.NoError(t, m.RemovePermissions(ctx, id, []string{"articles.publish"}))

	granted, err := m.HasPermission(ctx, id, "articles.publish", 2)
	require.NoError(t, err)
	require.False(t, granted)

	perms, err := m.ListPermissions(ctx, id)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"articles.edit": 1}, grantSet(perms))

	// Second removal of the same name and removal of a name never attached
	// are both no-ops.
	require.NoError(t, m.RemovePermissions(ctx, id, []string{"articles.publish"}))
	require.NoError(t, m.RemovePermissions(ctx, id, []string{"never.added"}))

	perms, err = m.ListPermissions(ctx, id)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"articles.edit": 1}, grantSet(perms))
}

func TestAddPermissionsDuplicatePair(t *testing.T) {
	store := newMemStore()
	m := rbac.NewManager(store, nil, nil)
	id := newEditorRole(t, m)

	err := m.AddPermissions(context.Background(), id, []rbac.Grant{{Name: "articles.edit", Level: 3}})
	require.Error(t, err)
	require.True(t, rbac.IsUniqueViolation(err))

	// The failed add must not have touched the existing grant.
	perms, err := m.ListPermissions(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"articles.publish": 2, "articles.edit": 1}, grantSet(perms))
}

func TestAddPermissionsUnknownRole(t *testing.T) {
	store := newMemStore()
	m := rbac.NewManager(store, nil, nil)

	err := m.AddPermissions(context.Background(), uuid.New(), []rbac.Grant{{Name: "articles.edit", Level: 1}})
	require.Error(t, err)
	require.True(t, rbac.IsForeignKeyViolation(err))
}

func TestGetRoleAbsent(t *testing.T) {
	store := newMemStore()
	m := rbac.NewManager(store, nil, nil)

	role, err := m.GetRole(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, role)
}
