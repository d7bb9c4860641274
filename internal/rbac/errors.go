package rbac

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// StoreError wraps an infrastructure failure (connectivity loss, constraint
// violation, query failure) raised by the permission store. Absence of a role
// or permission is never a StoreError; it is modeled as a plain value.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "rbac: store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// AuthorizationError wraps a store failure encountered while answering an
// authorization query. Callers must treat it as "undecidable", never as
// "deny".
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string {
	return "rbac: authorization check failed: " + e.Err.Error()
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// IsUniqueViolation reports whether err stems from a Postgres unique
// constraint violation, e.g. a duplicate (role_id, permission_name) pair.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err stems from a Postgres foreign key
// violation, e.g. attaching a permission to a role that does not exist.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
