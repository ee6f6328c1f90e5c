package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nimbusiot/lattice/entity"
)

// WebhookSender delivers a webhook action.
type WebhookSender interface {
	Send(ctx context.Context, cfg entity.WebhookConfig, payload map[string]any) error
}

// EmailSender delivers an email action. Delivery itself is an external
// collaborator; the core only records the outcome.
type EmailSender interface {
	Send(ctx context.Context, cfg entity.EmailConfig) error
}

// DeviceController applies an update_device action. Satisfied by the device
// manager's Control method.
type DeviceController interface {
	Control(ctx context.Context, workspaceID, deviceID, field string, value any) error
}

// Executor runs an automation's actions sequentially, in array order. Each
// action gets its own timer and isolated error capture: one action failing
// never aborts the rest of the sequence. Delays (a pre-delay on any action,
// or a dedicated delay action) block the later actions of the same
// invocation.
type Executor struct {
	webhooks WebhookSender
	email    EmailSender
	devices  DeviceController
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor. Nil senders make the corresponding
// action type fail with a recorded error rather than panic. The per-action
// timeout defaults to 30s; the engine overrides it from Config.ActionTimeout.
func NewExecutor(webhooks WebhookSender, email EmailSender, devices DeviceController, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		webhooks: webhooks,
		email:    email,
		devices:  devices,
		logger:   logger,
		timeout:  30 * time.Second,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run executes the actions and returns per-action results plus the
// aggregate status: success iff none failed, failure iff all failed,
// partial_failure otherwise.
func (e *Executor) Run(ctx context.Context, workspaceID string, actions []entity.Action, triggerData map[string]any) ([]entity.ActionResult, entity.ExecStatus) {
	results := make([]entity.ActionResult, 0, len(actions))
	failures := 0

	for i, action := range actions {
		if action.DelayMs > 0 {
			if err := e.sleep(ctx, time.Duration(action.DelayMs)*time.Millisecond); err != nil {
				// Context gone; record the remaining actions as failed.
				for ; i < len(actions); i++ {
					results = append(results, entity.ActionResult{
						ActionIndex: i,
						ActionType:  actions[i].Type,
						Status:      entity.ExecFailure,
						Error:       err.Error(),
					})
					failures++
				}
				break
			}
		}

		start := e.now()
		err := e.runOne(ctx, workspaceID, action, triggerData)
		result := entity.ActionResult{
			ActionIndex: i,
			ActionType:  action.Type,
			Status:      entity.ExecSuccess,
			DurationMs:  e.now().Sub(start).Milliseconds(),
		}
		if err != nil {
			result.Status = entity.ExecFailure
			result.Error = err.Error()
			failures++
		}
		results = append(results, result)
	}

	return results, aggregate(len(results), failures)
}

func aggregate(total, failures int) entity.ExecStatus {
	switch {
	case failures == 0:
		return entity.ExecSuccess
	case failures == total:
		return entity.ExecFailure
	default:
		return entity.ExecPartialFailure
	}
}

// runOne dispatches on the action type with a bounded per-action timeout.
// Panics are captured as action errors.
func (e *Executor) runOne(ctx context.Context, workspaceID string, action entity.Action, triggerData map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()

	// The delay action blocks without a timeout; its whole point is to pause.
	if action.Type == entity.ActionDelay {
		return e.sleep(ctx, time.Duration(action.Delay.DurationMs)*time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch action.Type {
	case entity.ActionWebhook:
		if e.webhooks == nil {
			return fmt.Errorf("no webhook sender configured")
		}
		return e.webhooks.Send(ctx, *action.Webhook, triggerData)
	case entity.ActionEmail:
		if e.email == nil {
			return fmt.Errorf("no email sender configured")
		}
		return e.email.Send(ctx, *action.Email)
	case entity.ActionUpdateDevice:
		if e.devices == nil {
			return fmt.Errorf("no device controller configured")
		}
		cfg := action.UpdateDevice
		return e.devices.Control(ctx, workspaceID, cfg.DeviceID, cfg.Field, cfg.Value)
	case entity.ActionLog:
		e.logger.Info("automation log action",
			"workspace", workspaceID,
			"message", action.Log.Message,
		)
		return nil
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// sleepCtx pauses for d, aborting early when ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HTTPWebhook posts trigger data as JSON to the configured URL.
type HTTPWebhook struct {
	Client *http.Client
}

// NewHTTPWebhook creates a webhook sender with a bounded default client.
func NewHTTPWebhook() *HTTPWebhook {
	return &HTTPWebhook{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *HTTPWebhook) Send(ctx context.Context, cfg entity.WebhookConfig, payload map[string]any) error {
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	body := []byte(cfg.Body)
	if len(body) == 0 && payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
