package entity

import (
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/store"
)

// AutomationStatus is an automation rule's lifecycle status.
type AutomationStatus string

const (
	AutomationActive   AutomationStatus = "active"
	AutomationPaused   AutomationStatus = "paused"
	AutomationDisabled AutomationStatus = "disabled"
)

// TriggerType tags the trigger union of an automation.
type TriggerType string

const (
	TriggerDeviceData   TriggerType = "device_data"
	TriggerDeviceStatus TriggerType = "device_status"
	TriggerSchedule     TriggerType = "schedule"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
)

// ConditionLogic combines multiple conditions or groups.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

// Condition compares one field against a value.
type Condition struct {
	Field    string   `dynamodbav:"field" json:"field"`
	Operator Operator `dynamodbav:"operator" json:"operator"`
	Value    any      `dynamodbav:"value" json:"value"`
}

// TriggerConfig is the tagged trigger union; the automation's TriggerType
// selects which fields are meaningful.
type TriggerConfig struct {
	// device_data and device_status
	DeviceID string `dynamodbav:"device_id,omitempty" json:"deviceId,omitempty"`

	// device_data
	Conditions []Condition    `dynamodbav:"conditions,omitempty" json:"conditions,omitempty"`
	Logic      ConditionLogic `dynamodbav:"logic,omitempty" json:"logic,omitempty"`

	// device_status
	Status DeviceStatus `dynamodbav:"status,omitempty" json:"status,omitempty"`

	// schedule
	Cron     string `dynamodbav:"cron,omitempty" json:"cron,omitempty"`
	Timezone string `dynamodbav:"timezone,omitempty" json:"timezone,omitempty"`
}

// ConditionGroup is an extra condition set scoped to a device's latest
// known fields.
type ConditionGroup struct {
	DeviceID   string         `dynamodbav:"device_id" json:"deviceId"`
	Logic      ConditionLogic `dynamodbav:"logic,omitempty" json:"logic,omitempty"`
	Conditions []Condition    `dynamodbav:"conditions" json:"conditions"`
}

// ActionType tags the action union.
type ActionType string

const (
	ActionWebhook      ActionType = "webhook"
	ActionEmail        ActionType = "email"
	ActionUpdateDevice ActionType = "update_device"
	ActionDelay        ActionType = "delay"
	ActionLog          ActionType = "log"
)

// WebhookConfig configures a webhook action.
type WebhookConfig struct {
	URL     string            `dynamodbav:"url" json:"url"`
	Method  string            `dynamodbav:"method,omitempty" json:"method,omitempty"`
	Headers map[string]string `dynamodbav:"headers,omitempty" json:"headers,omitempty"`
	Body    string            `dynamodbav:"body,omitempty" json:"body,omitempty"`
}

// EmailConfig configures an email action.
type EmailConfig struct {
	To      []string `dynamodbav:"to" json:"to"`
	Subject string   `dynamodbav:"subject" json:"subject"`
	Body    string   `dynamodbav:"body,omitempty" json:"body,omitempty"`
}

// UpdateDeviceConfig configures an update_device action.
type UpdateDeviceConfig struct {
	DeviceID string `dynamodbav:"device_id" json:"deviceId"`
	Field    string `dynamodbav:"field" json:"field"`
	Value    any    `dynamodbav:"value" json:"value"`
}

// DelayConfig configures a delay action.
type DelayConfig struct {
	DurationMs int64 `dynamodbav:"duration_ms" json:"durationMs"`
}

// LogConfig configures a log action.
type LogConfig struct {
	Message string `dynamodbav:"message" json:"message"`
}

// Action is one step of an automation's execution, tagged by Type.
// DelayMs, when set, inserts a pause before the action runs.
type Action struct {
	Type         ActionType          `dynamodbav:"type" json:"type"`
	DelayMs      int64               `dynamodbav:"delay_ms,omitempty" json:"delayMs,omitempty"`
	Webhook      *WebhookConfig      `dynamodbav:"webhook,omitempty" json:"webhook,omitempty"`
	Email        *EmailConfig        `dynamodbav:"email,omitempty" json:"email,omitempty"`
	UpdateDevice *UpdateDeviceConfig `dynamodbav:"update_device,omitempty" json:"updateDevice,omitempty"`
	Delay        *DelayConfig        `dynamodbav:"delay,omitempty" json:"delay,omitempty"`
	Log          *LogConfig          `dynamodbav:"log,omitempty" json:"log,omitempty"`
}

// Automation is one tenant-defined trigger rule.
type Automation struct {
	WorkspaceID     string           `dynamodbav:"workspace_id" json:"workspaceId"`
	AutomationID    string           `dynamodbav:"automation_id" json:"automationId"`
	Name            string           `dynamodbav:"name" json:"name"`
	Status          AutomationStatus `dynamodbav:"status" json:"status"`
	TriggerType     TriggerType      `dynamodbav:"trigger_type" json:"triggerType"`
	Trigger         TriggerConfig    `dynamodbav:"trigger" json:"trigger"`
	ConditionLogic  ConditionLogic   `dynamodbav:"condition_logic,omitempty" json:"conditionLogic,omitempty"`
	ConditionGroups []ConditionGroup `dynamodbav:"condition_groups,omitempty" json:"conditionGroups,omitempty"`
	Actions         []Action         `dynamodbav:"actions" json:"actions"`
	CreatedAt       string           `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       string           `dynamodbav:"updated_at" json:"updatedAt"`
}

func (a Automation) RecordKey() store.Key {
	return store.Key{
		PK: shard.WorkspacePK(a.WorkspaceID),
		SK: shard.AutomationSK(a.AutomationID),
	}
}

func (a Automation) EntityType() string { return "automation" }
