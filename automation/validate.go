package automation

import (
	"errors"
	"fmt"

	"github.com/nimbusiot/lattice/entity"
)

// ErrInvalidRule is the validation error class for malformed trigger or
// action configuration. Rules are rejected at save time, never at
// evaluation time.
var ErrInvalidRule = errors.New("lattice: invalid automation rule")

var validOperators = map[entity.Operator]bool{
	entity.OpEquals:             true,
	entity.OpNotEquals:          true,
	entity.OpGreaterThan:        true,
	entity.OpLessThan:           true,
	entity.OpGreaterThanOrEqual: true,
	entity.OpLessThanOrEqual:    true,
	entity.OpContains:           true,
	entity.OpNotContains:        true,
}

// Validate checks an automation's trigger and action configuration.
// Call before persisting a created or updated rule.
func Validate(a entity.Automation) error {
	switch a.TriggerType {
	case entity.TriggerDeviceData:
		if a.Trigger.DeviceID == "" {
			return fmt.Errorf("%w: device_data trigger requires a device id", ErrInvalidRule)
		}
		if err := validateConditions(a.Trigger.Conditions); err != nil {
			return err
		}
	case entity.TriggerDeviceStatus:
		if a.Trigger.DeviceID == "" {
			return fmt.Errorf("%w: device_status trigger requires a device id", ErrInvalidRule)
		}
		switch a.Trigger.Status {
		case entity.StatusOnline, entity.StatusOffline, entity.StatusError:
		default:
			return fmt.Errorf("%w: unknown device status %q", ErrInvalidRule, a.Trigger.Status)
		}
	case entity.TriggerSchedule:
		if _, _, err := parseSchedule(a.Trigger); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidRule, a.TriggerType)
	}

	for _, group := range a.ConditionGroups {
		if group.DeviceID == "" {
			return fmt.Errorf("%w: condition group requires a device id", ErrInvalidRule)
		}
		if len(group.Conditions) == 0 {
			return fmt.Errorf("%w: condition group requires conditions", ErrInvalidRule)
		}
		if err := validateConditions(group.Conditions); err != nil {
			return err
		}
	}

	if len(a.Actions) == 0 {
		return fmt.Errorf("%w: at least one action required", ErrInvalidRule)
	}
	for i, action := range a.Actions {
		if err := validateAction(action); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func validateConditions(conds []entity.Condition) error {
	for _, cond := range conds {
		if cond.Field == "" {
			return fmt.Errorf("%w: condition requires a field", ErrInvalidRule)
		}
		if !validOperators[cond.Operator] {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, cond.Operator)
		}
	}
	return nil
}

func validateAction(action entity.Action) error {
	switch action.Type {
	case entity.ActionWebhook:
		if action.Webhook == nil || action.Webhook.URL == "" {
			return fmt.Errorf("%w: webhook action requires a url", ErrInvalidRule)
		}
	case entity.ActionEmail:
		if action.Email == nil || len(action.Email.To) == 0 {
			return fmt.Errorf("%w: email action requires recipients", ErrInvalidRule)
		}
	case entity.ActionUpdateDevice:
		if action.UpdateDevice == nil || action.UpdateDevice.DeviceID == "" || action.UpdateDevice.Field == "" {
			return fmt.Errorf("%w: update_device action requires device id and field", ErrInvalidRule)
		}
	case entity.ActionDelay:
		if action.Delay == nil || action.Delay.DurationMs <= 0 {
			return fmt.Errorf("%w: delay action requires a positive duration", ErrInvalidRule)
		}
	case entity.ActionLog:
		if action.Log == nil || action.Log.Message == "" {
			return fmt.Errorf("%w: log action requires a message", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidRule, action.Type)
	}
	if action.DelayMs < 0 {
		return fmt.Errorf("%w: negative pre-delay", ErrInvalidRule)
	}
	return nil
}
