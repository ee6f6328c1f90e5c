// Package automation owns per-workspace rule evaluation: trigger matching
// for device data, device status, and cron schedules, sequential action
// execution with partial-failure semantics, and execution logging/stats.
// One actor instance serves each workspace; all of a tenant's evaluation
// serializes through its key.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusiot/lattice/actor"
	"github.com/nimbusiot/lattice/entity"
	"github.com/nimbusiot/lattice/internal/shard"
	"github.com/nimbusiot/lattice/notify"
	"github.com/nimbusiot/lattice/store"
)

// tenant is the per-workspace actor state: the rule cache and the armed
// schedule timer. Only the workspace's mailbox touches it.
type tenant struct {
	rules  []entity.Automation
	loaded bool

	alarm    *time.Timer
	alarmAt  time.Time
	alarmGen int
}

// Engine is the automation subsystem. Address operations by workspace ID;
// they serialize per workspace through the actor system.
type Engine struct {
	sys        *actor.System
	st         *store.Store
	exec       *Executor
	dispatcher notify.Dispatcher
	config     Config
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
	// tenants caches per-workspace state. Invalidate prunes entries for
	// workspaces with no rules left; the rest stay as the rule cache.
	tenants map[string]*tenant
}

// NewEngine creates the automation engine.
func NewEngine(sys *actor.System, st *store.Store, exec *Executor, dispatcher notify.Dispatcher, config Config, logger *slog.Logger) *Engine {
	config.validate()
	if exec != nil {
		exec.timeout = config.ActionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dispatcher == nil {
		dispatcher = notify.Noop{}
	}
	return &Engine{
		sys:        sys,
		st:         st,
		exec:       exec,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger,
		now:        time.Now,
		tenants:    make(map[string]*tenant),
	}
}

// SetNow overrides the time source. Tests only.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

func (e *Engine) tenant(workspaceID string) *tenant {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tenants[workspaceID]
	if !ok {
		t = &tenant{}
		e.tenants[workspaceID] = t
	}
	return t
}

// Invalidate forces a rule reload on the workspace's next evaluation and
// re-arms the schedule timer. Call after any rule create, update, or
// delete. A workspace left with no active rules has its tenant entry
// evicted, so deleted workspaces do not pin state forever.
func (e *Engine) Invalidate(workspaceID string) {
	e.sys.Post(workspaceID, func(ctx context.Context) error {
		t := e.tenant(workspaceID)
		t.loaded = false
		if err := e.ensureLoaded(ctx, workspaceID, t); err != nil {
			return err
		}
		e.arm(workspaceID, t)
		if len(t.rules) == 0 {
			e.dropTenant(workspaceID, t)
		}
		return nil
	})
}

// dropTenant evicts an empty tenant entry. The alarm is already cancelled
// since a ruleless tenant has nothing to arm.
func (e *Engine) dropTenant(workspaceID string, t *tenant) {
	e.mu.Lock()
	if e.tenants[workspaceID] == t {
		delete(e.tenants, workspaceID)
	}
	e.mu.Unlock()
}

// OnDeviceData evaluates device_data rules for one device's event,
// fire-and-forget.
func (e *Engine) OnDeviceData(workspaceID, deviceID string, fields map[string]any) {
	e.sys.Post(workspaceID, func(ctx context.Context) error {
		t := e.tenant(workspaceID)
		if err := e.ensureLoaded(ctx, workspaceID, t); err != nil {
			return err
		}

		for _, rule := range t.rules {
			if rule.Status != entity.AutomationActive || rule.TriggerType != entity.TriggerDeviceData {
				continue
			}
			if rule.Trigger.DeviceID != deviceID {
				continue
			}
			matched, err := e.ruleMatches(ctx, workspaceID, rule, fields)
			if err != nil {
				e.logger.Warn("rule evaluation failed", "workspace", workspaceID, "automation", rule.AutomationID, "error", err)
				continue
			}
			if matched {
				e.execute(ctx, workspaceID, rule, map[string]any{
					"deviceId": deviceID,
					"fields":   fields,
				})
			}
		}
		return nil
	})
}

// OnDeviceStatus evaluates device_status rules for a connectivity change,
// fire-and-forget.
func (e *Engine) OnDeviceStatus(workspaceID, deviceID string, status entity.DeviceStatus) {
	e.sys.Post(workspaceID, func(ctx context.Context) error {
		t := e.tenant(workspaceID)
		if err := e.ensureLoaded(ctx, workspaceID, t); err != nil {
			return err
		}

		for _, rule := range t.rules {
			if rule.Status != entity.AutomationActive || rule.TriggerType != entity.TriggerDeviceStatus {
				continue
			}
			if rule.Trigger.DeviceID != deviceID || rule.Trigger.Status != status {
				continue
			}
			e.execute(ctx, workspaceID, rule, map[string]any{
				"deviceId": deviceID,
				"status":   string(status),
			})
		}
		return nil
	})
}

// OnScheduleTick evaluates all schedule rules against now. Driven by the
// external coarse periodic tick; the internally armed alarm calls the same
// path. Both mechanisms stay in place deliberately.
func (e *Engine) OnScheduleTick(workspaceID string, now time.Time) {
	e.sys.Post(workspaceID, func(ctx context.Context) error {
		t := e.tenant(workspaceID)
		if err := e.ensureLoaded(ctx, workspaceID, t); err != nil {
			return err
		}
		e.evaluateSchedules(ctx, workspaceID, t, now)
		e.arm(workspaceID, t)
		return nil
	})
}

// TickAll delivers the external wall-clock tick to every known workspace,
// the coarse fallback alongside each tenant's own armed timer.
func (e *Engine) TickAll(now time.Time) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.tenants))
	for id := range e.tenants {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.OnScheduleTick(id, now)
	}
}

// evaluateSchedules runs every active schedule rule that matches the
// minute containing now, not just the one the alarm was armed for.
func (e *Engine) evaluateSchedules(ctx context.Context, workspaceID string, t *tenant, now time.Time) {
	for _, rule := range t.rules {
		if rule.Status != entity.AutomationActive || rule.TriggerType != entity.TriggerSchedule {
			continue
		}
		if scheduleMatches(rule.Trigger, now) {
			e.execute(ctx, workspaceID, rule, map[string]any{
				"firedAt": now.UnixMilli(),
				"cron":    rule.Trigger.Cron,
			})
		}
	}
}

// arm re-arms the single wake-up timer at the earliest next fire time
// across active schedule rules, or cancels it when none are active.
func (e *Engine) arm(workspaceID string, t *tenant) {
	now := e.now()
	var earliest time.Time
	for _, rule := range t.rules {
		if rule.Status != entity.AutomationActive || rule.TriggerType != entity.TriggerSchedule {
			continue
		}
		next, ok := nextFire(rule.Trigger, now)
		if !ok {
			continue
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}

	if t.alarm != nil {
		t.alarm.Stop()
		t.alarm = nil
	}
	t.alarmGen++
	t.alarmAt = earliest
	if earliest.IsZero() {
		return
	}

	gen := t.alarmGen
	t.alarm = time.AfterFunc(earliest.Sub(now), func() {
		e.onAlarm(workspaceID, gen)
	})
}

// onAlarm is the armed timer's wake-up: evaluate all schedule rules, then
// re-arm. A stale generation (timer re-armed since this one was set) is a
// no-op.
func (e *Engine) onAlarm(workspaceID string, gen int) {
	e.sys.Post(workspaceID, func(ctx context.Context) error {
		t := e.tenant(workspaceID)
		if t.alarmGen != gen {
			return nil
		}
		if err := e.ensureLoaded(ctx, workspaceID, t); err != nil {
			return err
		}
		e.evaluateSchedules(ctx, workspaceID, t, e.now())
		e.arm(workspaceID, t)
		return nil
	})
}

// NextAlarm reports when the workspace's schedule timer is armed for.
// Zero when no schedule rules are active. Tests and diagnostics.
func (e *Engine) NextAlarm(workspaceID string) time.Time {
	done := make(chan time.Time, 1)
	e.sys.Post(workspaceID, func(context.Context) error {
		done <- e.tenant(workspaceID).alarmAt
		return nil
	})
	return <-done
}

// ensureLoaded lazily loads the workspace's rules on first use.
func (e *Engine) ensureLoaded(ctx context.Context, workspaceID string, t *tenant) error {
	if t.loaded {
		return nil
	}

	items, err := e.st.QueryBySortPrefix(ctx, shard.WorkspacePK(workspaceID), "automation#")
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	rules := make([]entity.Automation, 0, len(items))
	for _, item := range store.FilterActive(items) {
		var rule entity.Automation
		if err := item.Unmarshal(&rule); err != nil {
			e.logger.Warn("skipping undecodable rule", "workspace", workspaceID, "sk", item.Key.SK, "error", err)
			continue
		}
		rules = append(rules, rule)
	}

	t.rules = rules
	t.loaded = true
	e.warnSelfReferences(workspaceID, rules)
	return nil
}

// warnSelfReferences flags update_device actions that target the same
// device whose data triggers the rule. Advisory only; nothing is enforced.
func (e *Engine) warnSelfReferences(workspaceID string, rules []entity.Automation) {
	for _, rule := range rules {
		if rule.TriggerType != entity.TriggerDeviceData {
			continue
		}
		for i, action := range rule.Actions {
			if action.Type == entity.ActionUpdateDevice && action.UpdateDevice != nil &&
				action.UpdateDevice.DeviceID == rule.Trigger.DeviceID {
				e.logger.Warn("automation updates its own trigger device; possible feedback loop",
					"workspace", workspaceID,
					"automation", rule.AutomationID,
					"actionIndex", i,
					"device", action.UpdateDevice.DeviceID,
				)
			}
		}
	}
}

// ruleMatches evaluates the primary conditions against the event fields,
// then each extra condition group against its device's latest known fields,
// combined under the rule's top-level condition logic (default AND, OR
// short-circuits).
func (e *Engine) ruleMatches(ctx context.Context, workspaceID string, rule entity.Automation, fields map[string]any) (bool, error) {
	primary := evalConditions(rule.Trigger.Conditions, rule.Trigger.Logic, fields)

	if len(rule.ConditionGroups) == 0 {
		return primary, nil
	}

	logic := rule.ConditionLogic
	if logic == "" {
		logic = entity.LogicAnd
	}
	if logic == entity.LogicOr && primary {
		return true, nil
	}

	groups := make([]bool, 0, len(rule.ConditionGroups))
	for _, group := range rule.ConditionGroups {
		groupFields, err := e.latestFields(ctx, workspaceID, group.DeviceID)
		if err != nil {
			return false, err
		}
		matched := evalConditions(group.Conditions, group.Logic, groupFields)
		if logic == entity.LogicOr && matched {
			return true, nil
		}
		groups = append(groups, matched)
	}

	return combine(logic, primary, groups), nil
}

// latestFields reads a device's last known field values for condition
// group evaluation.
func (e *Engine) latestFields(ctx context.Context, workspaceID, deviceID string) (map[string]any, error) {
	item, err := e.st.Get(ctx, store.Key{
		PK: shard.WorkspacePK(workspaceID),
		SK: shard.DeviceSK(deviceID),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dev entity.Device
	if err := item.Unmarshal(&dev); err != nil {
		return nil, err
	}
	return dev.LastData, nil
}

// execute runs a matched rule's actions, writes the execution log, folds
// the outcome into the rolling stats, and dispatches a detached summary
// notification. Action errors are captured per action, never raised to the
// trigger source.
func (e *Engine) execute(ctx context.Context, workspaceID string, rule entity.Automation, triggerData map[string]any) {
	started := e.now()
	results, status := e.exec.Run(ctx, workspaceID, rule.Actions, triggerData)
	duration := e.now().Sub(started).Milliseconds()

	log := entity.AutomationLog{
		WorkspaceID:   workspaceID,
		LogID:         uuid.NewString(),
		AutomationID:  rule.AutomationID,
		TriggerType:   rule.TriggerType,
		TriggerData:   triggerData,
		ActionResults: results,
		Status:        status,
		DurationMs:    duration,
		ExecutedAt:    started.UnixMilli(),
		ExpiresAt:     started.Add(e.config.LogTTL).Unix(),
	}
	if err := e.st.Put(ctx, log); err != nil {
		e.logger.Error("write execution log failed", "workspace", workspaceID, "automation", rule.AutomationID, "error", err)
	}

	if err := e.updateStats(ctx, workspaceID, rule.AutomationID, status, duration, log.ExecutedAt); err != nil {
		e.logger.Warn("update stats failed", "workspace", workspaceID, "automation", rule.AutomationID, "error", err)
	}

	e.logger.Info("automation executed",
		"workspace", workspaceID,
		"automation", rule.AutomationID,
		"status", string(status),
		"durationMs", duration,
		"actions", len(results),
	)

	actor.Detach(e.logger, "automation-summary-notification", func(ctx context.Context) error {
		severity := notify.SeverityInfo
		if status != entity.ExecSuccess {
			severity = notify.SeverityWarning
		}
		return e.dispatcher.Dispatch(ctx, notify.Notification{
			WorkspaceID: workspaceID,
			Type:        "automation_executed",
			Severity:    severity,
			Title:       "Automation " + rule.Name,
			Message:     fmt.Sprintf("Automation %s finished with status %s", rule.Name, status),
			Metadata: map[string]any{
				"automationId": rule.AutomationID,
				"logId":        log.LogID,
				"status":       string(status),
			},
		})
	})
}

// updateStats is a read-modify-write of the rolling aggregate. It is not
// atomic with the log write and can race under concurrent executions of
// the same automation; the aggregates are advisory, not billing-critical.
func (e *Engine) updateStats(ctx context.Context, workspaceID, automationID string, status entity.ExecStatus, durationMs, executedAt int64) error {
	stats := entity.AutomationStats{
		WorkspaceID:  workspaceID,
		AutomationID: automationID,
	}
	item, err := e.st.Get(ctx, stats.RecordKey())
	if err == nil {
		if err := item.Unmarshal(&stats); err != nil {
			return fmt.Errorf("unmarshal stats: %w", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	stats.Record(status, durationMs, executedAt)
	return e.st.Put(ctx, stats)
}
