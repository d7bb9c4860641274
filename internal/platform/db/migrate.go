package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is a single schema change applied exactly once, identified by ID.
type Migration struct {
	ID  string
	SQL string
}

// Migrations returns the full schema history for the application, in order.
func Migrations() []Migration {
	return []Migration{
		{
			ID: "quill-001-roles",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL UNIQUE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
                )`,
		},
		{
			ID: "quill-002-roles-permissions",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles_permissions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
                    permission_name TEXT NOT NULL,
                    permission_level BIGINT NOT NULL,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
                    UNIQUE (role_id, permission_name)
                )`,
		},
		{
			ID: "quill-003-users",
			SQL: `
                CREATE TABLE IF NOT EXISTS users (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    email TEXT NOT NULL UNIQUE,
                    password TEXT NOT NULL,
                    role UUID NOT NULL REFERENCES roles(id),
                    active BOOLEAN NOT NULL DEFAULT TRUE,
                    mfa_enabled BOOLEAN NOT NULL DEFAULT FALSE,
                    mfa_verified BOOLEAN NOT NULL DEFAULT FALSE,
                    mfa_secret TEXT NOT NULL DEFAULT '',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
                )`,
		},
		{
			ID: "quill-004-sessions",
			SQL: `
                CREATE TABLE IF NOT EXISTS sessions (
                    id TEXT PRIMARY KEY,
                    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
                    expires_at TIMESTAMPTZ NOT NULL,
                    ip TEXT,
                    ua TEXT
                )`,
		},
		{
			ID: "quill-005-audit-logs",
			SQL: `
                CREATE TABLE IF NOT EXISTS audit_logs (
                    id BIGSERIAL PRIMARY KEY,
                    actor TEXT NOT NULL DEFAULT '',
                    action TEXT NOT NULL,
                    entity TEXT NOT NULL,
                    entity_id TEXT NOT NULL DEFAULT '',
                    meta JSONB,
                    occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
                )`,
		},
	}
}

// Migrate applies pending migrations in order. Each migration runs in its own
// transaction together with its bookkeeping row, so a failure leaves the
// schema history consistent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            id TEXT PRIMARY KEY,
            applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`)
	if err != nil {
		return fmt.Errorf("platform/db: create schema_migrations: %w", err)
	}

	for _, m := range Migrations() {
		applied, err := migrationApplied(ctx, pool, m.ID)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		m := m
		if err := WithTx(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("platform/db: apply %s: %w", m.ID, err)
			}
			// ON CONFLICT guards against a concurrent instance racing the
			// same migration.
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, m.ID); err != nil {
				return fmt.Errorf("platform/db: record %s: %w", m.ID, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func migrationApplied(ctx context.Context, pool *pgxpool.Pool, id string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("platform/db: check migration %s: %w", id, err)
	}
	return exists, nil
}
