package entity

import (
	"time"

	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
)

// ExecStatus is a recorded outcome, per action or aggregate.
type ExecStatus string

const (
	ExecSuccess        ExecStatus = "success"
	ExecPartialFailure ExecStatus = "partial_failure"
	ExecFailure        ExecStatus = "failure"
)

// ActionResult records one action's outcome within an execution.
type ActionResult struct {
	ActionIndex int        `dynamodbav:"action_index" json:"actionIndex"`
	ActionType  ActionType `dynamodbav:"action_type" json:"actionType"`
	Status      ExecStatus `dynamodbav:"status" json:"status"`
	DurationMs  int64      `dynamodbav:"duration_ms" json:"durationMs"`
	Error       string     `dynamodbav:"error,omitempty" json:"error,omitempty"`
}

// AutomationLog is the write-once record of one automation execution.
type AutomationLog struct {
	WorkspaceID   string         `dynamodbav:"workspace_id" json:"workspaceId"`
	LogID         string         `dynamodbav:"log_id" json:"logId"`
	AutomationID  string         `dynamodbav:"automation_id" json:"automationId"`
	TriggerType   TriggerType    `dynamodbav:"trigger_type" json:"triggerType"`
	TriggerData   map[string]any `dynamodbav:"trigger_data,omitempty" json:"triggerData,omitempty"`
	ActionResults []ActionResult `dynamodbav:"action_results" json:"actionResults"`
	Status        ExecStatus     `dynamodbav:"status" json:"status"`
	DurationMs    int64          `dynamodbav:"duration_ms" json:"durationMs"`
	ExecutedAt    int64          `dynamodbav:"executed_at" json:"executedAt"`
	ExpiresAt     int64          `dynamodbav:"expires_at,omitempty" json:"expiresAt,omitempty"`
	CreatedAt     string         `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt     string         `dynamodbav:"updated_at" json:"updatedAt"`
}

func (l AutomationLog) RecordKey() store.Key {
	return store.Key{
		PK: shard.WorkspacePK(l.WorkspaceID),
		SK: shard.AutomationLogSK(time.UnixMilli(l.ExecutedAt), l.LogID),
	}
}

func (l AutomationLog) EntityType() string { return "automation_log" }

// AutomationStats is the rolling per-automation aggregate. It is updated
// read-modify-write and not transactional with the log write; concurrent
// executions of the same automation can race. Advisory only.
type AutomationStats struct {
	WorkspaceID         string     `dynamodbav:"workspace_id" json:"workspaceId"`
	AutomationID        string     `dynamodbav:"automation_id" json:"automationId"`
	TotalExecutions     int64      `dynamodbav:"total_executions" json:"totalExecutions"`
	SuccessCount        int64      `dynamodbav:"success_count" json:"successCount"`
	PartialFailureCount int64      `dynamodbav:"partial_failure_count" json:"partialFailureCount"`
	FailureCount        int64      `dynamodbav:"failure_count" json:"failureCount"`
	TotalDurationMs     int64      `dynamodbav:"total_duration_ms" json:"totalDurationMs"`
	LastExecutedAt      int64      `dynamodbav:"last_executed_at" json:"lastExecutedAt"`
	LastStatus          ExecStatus `dynamodbav:"last_status,omitempty" json:"lastStatus,omitempty"`
	CreatedAt           string     `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt           string     `dynamodbav:"updated_at" json:"updatedAt"`
}

func (s AutomationStats) RecordKey() store.Key {
	return store.Key{
		PK: shard.WorkspacePK(s.WorkspaceID),
		SK: shard.AutomationStatsSK(s.AutomationID),
	}
}

func (s AutomationStats) EntityType() string { return "automation_stats" }

// Record folds one execution outcome into the aggregate.
func (s *AutomationStats) Record(status ExecStatus, durationMs, executedAt int64) {
	s.TotalExecutions++
	s.TotalDurationMs += durationMs
	s.LastExecutedAt = executedAt
	s.LastStatus = status
	switch status {
	case ExecSuccess:
		s.SuccessCount++
	case ExecPartialFailure:
		s.PartialFailureCount++
	case ExecFailure:
		s.FailureCount++
	}
}
