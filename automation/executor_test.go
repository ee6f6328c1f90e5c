package automation_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusiot/lattice/automation"
	"github.com/nimbusiot/lattice/entity"
)

// fakeWebhooks records sends and fails on demand.
type fakeWebhooks struct {
	mu    sync.Mutex
	calls []entity.WebhookConfig
	err   error
}

func (f *fakeWebhooks) Send(_ context.Context, cfg entity.WebhookConfig, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cfg)
	return f.err
}

type fakeEmail struct {
	err error
}

func (f *fakeEmail) Send(context.Context, entity.EmailConfig) error { return f.err }

type fakeDevices struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeDevices) Control(_ context.Context, _, deviceID, field string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deviceID+"."+field)
	return f.err
}

func logAction(msg string) entity.Action {
	return entity.Action{Type: entity.ActionLog, Log: &entity.LogConfig{Message: msg}}
}

func webhookAction(url string) entity.Action {
	return entity.Action{Type: entity.ActionWebhook, Webhook: &entity.WebhookConfig{URL: url}}
}

func TestRun_AllSucceed(t *testing.T) {
	hooks := &fakeWebhooks{}
	exec := automation.NewExecutor(hooks, &fakeEmail{}, &fakeDevices{}, nil)

	results, status := exec.Run(context.Background(), "w1", []entity.Action{
		logAction("one"),
		webhookAction("https://example.com/hook"),
	}, map[string]any{"k": "v"})

	assert.Equal(t, entity.ExecSuccess, status)
	require.Len(t, results, 2)
	assert.Equal(t, entity.ExecSuccess, results[0].Status)
	assert.Equal(t, entity.ExecSuccess, results[1].Status)
	assert.Equal(t, 0, results[0].ActionIndex)
	assert.Equal(t, 1, results[1].ActionIndex)
	assert.Len(t, hooks.calls, 1)
}

func TestRun_FailureIsIsolated(t *testing.T) {
	hooks := &fakeWebhooks{err: errors.New("endpoint down")}
	devices := &fakeDevices{}
	exec := automation.NewExecutor(hooks, &fakeEmail{}, devices, nil)

	results, status := exec.Run(context.Background(), "w1", []entity.Action{
		webhookAction("https://example.com/hook"),
		{Type: entity.ActionUpdateDevice, UpdateDevice: &entity.UpdateDeviceConfig{DeviceID: "d1", Field: "mode", Value: "eco"}},
	}, nil)

	assert.Equal(t, entity.ExecPartialFailure, status)
	require.Len(t, results, 2)
	assert.Equal(t, entity.ExecFailure, results[0].Status)
	assert.Contains(t, results[0].Error, "endpoint down")
	// The failure did not stop the sequence.
	assert.Equal(t, entity.ExecSuccess, results[1].Status)
	assert.Equal(t, []string{"d1.mode"}, devices.calls)
}

func TestRun_AllFail(t *testing.T) {
	hooks := &fakeWebhooks{err: errors.New("down")}
	email := &fakeEmail{err: errors.New("smtp refused")}
	exec := automation.NewExecutor(hooks, email, nil, nil)

	results, status := exec.Run(context.Background(), "w1", []entity.Action{
		webhookAction("https://example.com/hook"),
		{Type: entity.ActionEmail, Email: &entity.EmailConfig{To: []string{"a@b.co"}}},
	}, nil)

	assert.Equal(t, entity.ExecFailure, status)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, entity.ExecFailure, r.Status)
	}
}

func TestRun_NilSenderRecordsFailure(t *testing.T) {
	exec := automation.NewExecutor(nil, nil, nil, nil)

	results, status := exec.Run(context.Background(), "w1", []entity.Action{
		webhookAction("https://example.com/hook"),
	}, nil)

	assert.Equal(t, entity.ExecFailure, status)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "no webhook sender")
}

func TestRun_DelayActionBlocksSequence(t *testing.T) {
	exec := automation.NewExecutor(nil, nil, nil, nil)

	start := time.Now()
	results, status := exec.Run(context.Background(), "w1", []entity.Action{
		logAction("before"),
		{Type: entity.ActionDelay, Delay: &entity.DelayConfig{DurationMs: 80}},
		logAction("after"),
	}, nil)
	elapsed := time.Since(start)

	assert.Equal(t, entity.ExecSuccess, status)
	require.Len(t, results, 3)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestRun_PreDelayBlocksAction(t *testing.T) {
	exec := automation.NewExecutor(nil, nil, nil, nil)

	start := time.Now()
	results, status := exec.Run(context.Background(), "w1", []entity.Action{
		{Type: entity.ActionLog, DelayMs: 60, Log: &entity.LogConfig{Message: "delayed"}},
	}, nil)
	elapsed := time.Since(start)

	assert.Equal(t, entity.ExecSuccess, status)
	require.Len(t, results, 1)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestRun_CancelledContextFailsRemainingActions(t *testing.T) {
	exec := automation.NewExecutor(nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, status := exec.Run(ctx, "w1", []entity.Action{
		{Type: entity.ActionLog, DelayMs: 1000, Log: &entity.LogConfig{Message: "never"}},
		logAction("also never"),
	}, nil)

	assert.Equal(t, entity.ExecFailure, status)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, entity.ExecFailure, r.Status)
		assert.Contains(t, r.Error, "context canceled")
	}
}

func TestRun_UnknownActionType(t *testing.T) {
	exec := automation.NewExecutor(nil, nil, nil, nil)

	results, status := exec.Run(context.Background(), "w1", []entity.Action{
		{Type: "carrier-pigeon"},
	}, nil)

	assert.Equal(t, entity.ExecFailure, status)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "unknown action type")
}

func TestRun_NilConfigPanicIsCaptured(t *testing.T) {
	exec := automation.NewExecutor(&fakeWebhooks{}, nil, nil, nil)

	// Webhook action with no config dereferences nil; the executor must
	// record the panic as an action failure, not crash.
	results, status := exec.Run(context.Background(), "w1", []entity.Action{
		{Type: entity.ActionWebhook},
		logAction("still runs"),
	}, nil)

	assert.Equal(t, entity.ExecPartialFailure, status)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Error, "panicked")
	assert.Equal(t, entity.ExecSuccess, results[1].Status)
}

func TestHTTPWebhook(t *testing.T) {
	var gotMethod, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := automation.NewHTTPWebhook()
	err := sender.Send(context.Background(), entity.WebhookConfig{URL: srv.URL}, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
}

func TestHTTPWebhook_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := automation.NewHTTPWebhook()
	err := sender.Send(context.Background(), entity.WebhookConfig{URL: srv.URL}, nil)
	assert.Error(t, err)
}
