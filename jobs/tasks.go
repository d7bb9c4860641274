package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge removes expired session audit rows.
	TaskSessionsPurge = "sessions:purge"
	// TaskAuditTrim drops audit log entries past the retention window.
	TaskAuditTrim = "audit:trim"
)

// AuditTrimPayload configures the audit retention task.
type AuditTrimPayload struct {
	RetainDays int `json:"retain_days"`
}

// NewSessionsPurgeTask constructs the session purge task.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

// NewAuditTrimTask constructs the audit trim task.
func NewAuditTrimTask(payload AuditTrimPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditTrim, data), nil
}
