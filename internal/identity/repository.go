package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
)

// CreateUserParams carries the fields required to insert a user.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	RoleID       uuid.UUID
}

// Repository defines persistence operations for user accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// Create inserts a user, or fetches the existing row when the email is
	// already taken. The bool reports whether a new row was inserted.
	Create(ctx context.Context, params CreateUserParams) (*User, bool, error)
	List(ctx context.Context) ([]User, error)
}

const userColumns = `id, email, password, role, active, mfa_enabled, mfa_verified, mfa_secret, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email, shared.ErrNotFound when absent.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByID fetches a user by ID, shared.ErrNotFound when absent.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg any) (*User, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("identity: find user: %w", err)
	}
	return user, nil
}

// Create inserts a new user. A concurrent insert of the same email loses the
// race on the unique constraint; the existing row is returned in that case so
// startup bootstrap is multi-instance safe.
func (r *PGRepository) Create(ctx context.Context, params CreateUserParams) (*User, bool, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password, role)
         VALUES ($1, $2, $3)
         ON CONFLICT (email) DO NOTHING
         RETURNING `+userColumns,
		params.Email, params.PasswordHash, params.RoleID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, err := r.FindByEmail(ctx, params.Email)
			return existing, false, err
		}
		return nil, false, fmt.Errorf("identity: create user: %w", err)
	}
	return user, true, nil
}

// List returns all user accounts ordered by creation time.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("identity: list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("identity: scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity: list users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Role, &u.Active,
		&u.MFAEnabled, &u.MFAVerified, &u.MFASecret, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)

// Directory adapts a Repository to the rbac.PrincipalSource interface.
type Directory struct {
	Repo Repository
}

// PrincipalByID resolves a user for authorization checks.
func (d Directory) PrincipalByID(ctx context.Context, id uuid.UUID) (rbac.Principal, error) {
	return d.Repo.FindByID(ctx, id)
}

var _ rbac.PrincipalSource = Directory{}
