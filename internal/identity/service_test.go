package identity_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillcms/quill/internal/identity"
	"github.com/quillcms/quill/internal/shared"
)

type stubRepo struct {
	byEmail map[string]*identity.User
	byID    map[uuid.UUID]*identity.User
}

func newStubRepo(users ...*identity.User) *stubRepo {
	repo := &stubRepo{
		byEmail: make(map[string]*identity.User),
		byID:    make(map[uuid.UUID]*identity.User),
	}
	for _, u := range users {
		repo.byEmail[u.Email] = u
		repo.byID[u.ID] = u
	}
	return repo
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) Create(ctx context.Context, params identity.CreateUserParams) (*identity.User, bool, error) {
	if existing, ok := s.byEmail[params.Email]; ok {
		return existing, false, nil
	}
	u := &identity.User{
		ID:       uuid.New(),
		Email:    params.Email,
		Password: params.PasswordHash,
		Role:     params.RoleID,
		Active:   true,
	}
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u
	return u, true, nil
}

func (s *stubRepo) List(ctx context.Context) ([]identity.User, error) {
	users := make([]identity.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, *u)
	}
	return users, nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hashed)
}

func TestAuthenticateSuccess(t *testing.T) {
	user := &identity.User{
		ID:       uuid.New(),
		Email:    "editor@example.com",
		Password: hashPassword(t, "swordfish"),
		Active:   true,
	}
	service := identity.NewService(newStubRepo(user))

	got, err := service.Authenticate(context.Background(), "editor@example.com", "swordfish")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	user := &identity.User{
		ID:       uuid.New(),
		Email:    "editor@example.com",
		Password: hashPassword(t, "swordfish"),
		Active:   true,
	}
	service := identity.NewService(newStubRepo(user))

	_, err := service.Authenticate(context.Background(), "editor@example.com", "marlin")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	service := identity.NewService(newStubRepo())

	_, err := service.Authenticate(context.Background(), "ghost@example.com", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	user := &identity.User{
		ID:       uuid.New(),
		Email:    "former@example.com",
		Password: hashPassword(t, "swordfish"),
		Active:   false,
	}
	service := identity.NewService(newStubRepo(user))

	_, err := service.Authenticate(context.Background(), "former@example.com", "swordfish")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
