package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	queries []string
	args    [][]any
	err     error
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag("DELETE 3"), nil
}

func TestPurgeExpiredSessions(t *testing.T) {
	db := &fakeExecer{}
	m := NewMaintenance(db, nil, nil)

	require.NoError(t, m.PurgeExpiredSessions(context.Background()))
	require.Len(t, db.queries, 1)
	require.Contains(t, db.queries[0], "DELETE FROM sessions")
}

func TestTrimAuditLogsDefaultsRetention(t *testing.T) {
	db := &fakeExecer{}
	m := NewMaintenance(db, nil, nil)

	require.NoError(t, m.TrimAuditLogs(context.Background(), 0))
	require.Len(t, db.args, 1)
	require.Equal(t, []any{DefaultAuditRetainDays}, db.args[0])
}

func TestTrimAuditLogsCustomRetention(t *testing.T) {
	db := &fakeExecer{}
	m := NewMaintenance(db, nil, nil)

	require.NoError(t, m.TrimAuditLogs(context.Background(), 14))
	require.Equal(t, []any{14}, db.args[0])
}

func TestMaintenancePropagatesStoreFailure(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection reset")}
	m := NewMaintenance(db, nil, nil)

	require.Error(t, m.PurgeExpiredSessions(context.Background()))
	require.Error(t, m.TrimAuditLogs(context.Background(), 7))
}

func TestHandleAuditTrimRejectsBadPayload(t *testing.T) {
	db := &fakeExecer{}
	m := NewMaintenance(db, nil, nil)

	task := asynq.NewTask(TaskAuditTrim, []byte(`{not json`))
	err := m.HandleAuditTrim(context.Background(), task)
	require.Error(t, err)
	require.Empty(t, db.queries)
}
