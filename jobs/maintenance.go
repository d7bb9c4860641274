package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quillcms/quill/internal/observability"
)

// DefaultAuditRetainDays is applied when a trim task carries no retention.
const DefaultAuditRetainDays = 90

// Execer is the slice of pgxpool.Pool the maintenance tasks need.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Maintenance bundles the recurring database housekeeping tasks.
type Maintenance struct {
	db      Execer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMaintenance constructs the maintenance task set. metrics may be nil.
func NewMaintenance(db Execer, logger *slog.Logger, metrics *observability.Metrics) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{db: db, logger: logger, metrics: metrics}
}

// PurgeExpiredSessions deletes session audit rows whose TTL has elapsed. The
// live sessions in Redis expire on their own; this only prunes the trail.
func (m *Maintenance) PurgeExpiredSessions(ctx context.Context) error {
	tag, err := m.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		m.metrics.RecordJob(TaskSessionsPurge, "error")
		return fmt.Errorf("jobs: purge sessions: %w", err)
	}
	m.metrics.RecordJob(TaskSessionsPurge, "ok")
	m.logger.Info("purged expired sessions", slog.Int64("rows", tag.RowsAffected()))
	return nil
}

// TrimAuditLogs deletes audit entries older than the retention window.
func (m *Maintenance) TrimAuditLogs(ctx context.Context, retainDays int) error {
	if retainDays <= 0 {
		retainDays = DefaultAuditRetainDays
	}
	tag, err := m.db.Exec(ctx,
		`DELETE FROM audit_logs WHERE occurred_at < NOW() - make_interval(days => $1)`, retainDays)
	if err != nil {
		m.metrics.RecordJob(TaskAuditTrim, "error")
		return fmt.Errorf("jobs: trim audit logs: %w", err)
	}
	m.metrics.RecordJob(TaskAuditTrim, "ok")
	m.logger.Info("trimmed audit logs",
		slog.Int("retain_days", retainDays),
		slog.Int64("rows", tag.RowsAffected()))
	return nil
}

// HandleSessionsPurge adapts PurgeExpiredSessions to an Asynq handler.
func (m *Maintenance) HandleSessionsPurge(ctx context.Context, t *asynq.Task) error {
	return m.PurgeExpiredSessions(ctx)
}

// HandleAuditTrim adapts TrimAuditLogs to an Asynq handler.
func (m *Maintenance) HandleAuditTrim(ctx context.Context, t *asynq.Task) error {
	var payload AuditTrimPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	return m.TrimAuditLogs(ctx, payload.RetainDays)
}
