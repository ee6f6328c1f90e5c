package automation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nimbusiot/lattice/automation"
	"github.com/nimbusiot/lattice/entity"
)

func validRule() entity.Automation {
	return entity.Automation{
		WorkspaceID:  "w1",
		AutomationID: "a1",
		Name:         "high temp",
		Status:       entity.AutomationActive,
		TriggerType:  entity.TriggerDeviceData,
		Trigger: entity.TriggerConfig{
			DeviceID: "d1",
			Conditions: []entity.Condition{
				{Field: "temperature", Operator: entity.OpGreaterThan, Value: 90},
			},
		},
		Actions: []entity.Action{
			{Type: entity.ActionLog, Log: &entity.LogConfig{Message: "hot"}},
		},
	}
}

func TestValidate_AcceptsWellFormedRules(t *testing.T) {
	assert.NoError(t, automation.Validate(validRule()))

	statusRule := validRule()
	statusRule.TriggerType = entity.TriggerDeviceStatus
	statusRule.Trigger = entity.TriggerConfig{DeviceID: "d1", Status: entity.StatusOffline}
	assert.NoError(t, automation.Validate(statusRule))

	schedRule := validRule()
	schedRule.TriggerType = entity.TriggerSchedule
	schedRule.Trigger = entity.TriggerConfig{Cron: "*/15 * * * *", Timezone: "Europe/Berlin"}
	assert.NoError(t, automation.Validate(schedRule))
}

func TestValidate_RejectsMalformedRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*entity.Automation)
	}{
		{"unknown trigger type", func(a *entity.Automation) { a.TriggerType = "webhook" }},
		{"missing device id", func(a *entity.Automation) { a.Trigger.DeviceID = "" }},
		{"condition without field", func(a *entity.Automation) {
			a.Trigger.Conditions = []entity.Condition{{Operator: entity.OpEquals, Value: 1}}
		}},
		{"unknown operator", func(a *entity.Automation) {
			a.Trigger.Conditions = []entity.Condition{{Field: "x", Operator: "matches", Value: 1}}
		}},
		{"bad cron", func(a *entity.Automation) {
			a.TriggerType = entity.TriggerSchedule
			a.Trigger = entity.TriggerConfig{Cron: "every tuesday"}
		}},
		{"bad device status", func(a *entity.Automation) {
			a.TriggerType = entity.TriggerDeviceStatus
			a.Trigger = entity.TriggerConfig{DeviceID: "d1", Status: "sleeping"}
		}},
		{"no actions", func(a *entity.Automation) { a.Actions = nil }},
		{"webhook without url", func(a *entity.Automation) {
			a.Actions = []entity.Action{{Type: entity.ActionWebhook, Webhook: &entity.WebhookConfig{}}}
		}},
		{"email without recipients", func(a *entity.Automation) {
			a.Actions = []entity.Action{{Type: entity.ActionEmail, Email: &entity.EmailConfig{Subject: "s"}}}
		}},
		{"update_device without field", func(a *entity.Automation) {
			a.Actions = []entity.Action{{Type: entity.ActionUpdateDevice, UpdateDevice: &entity.UpdateDeviceConfig{DeviceID: "d1"}}}
		}},
		{"delay without duration", func(a *entity.Automation) {
			a.Actions = []entity.Action{{Type: entity.ActionDelay, Delay: &entity.DelayConfig{}}}
		}},
		{"log without message", func(a *entity.Automation) {
			a.Actions = []entity.Action{{Type: entity.ActionLog, Log: &entity.LogConfig{}}}
		}},
		{"unknown action type", func(a *entity.Automation) {
			a.Actions = []entity.Action{{Type: "sms"}}
		}},
		{"negative pre-delay", func(a *entity.Automation) {
			a.Actions[0].DelayMs = -1
		}},
		{"group without device", func(a *entity.Automation) {
			a.ConditionGroups = []entity.ConditionGroup{{
				Conditions: []entity.Condition{{Field: "x", Operator: entity.OpEquals, Value: 1}},
			}}
		}},
		{"group without conditions", func(a *entity.Automation) {
			a.ConditionGroups = []entity.ConditionGroup{{DeviceID: "d2"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			err := automation.Validate(rule)
			assert.ErrorIs(t, err, automation.ErrInvalidRule)
		})
	}
}
