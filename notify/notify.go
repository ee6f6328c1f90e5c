// Package notify defines the outbound notification surface. Dispatch is
// always fire-and-forget from the core's point of view: callers invoke it
// through actor.Detach and never observe failures.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Severity grades a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification is one outbound message to a workspace's members.
type Notification struct {
	WorkspaceID string         `json:"workspaceId"`
	Type        string         `json:"type"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Dispatcher fans a notification out to whatever delivery channels are
// configured for the workspace.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Noop discards every notification.
type Noop struct{}

func (Noop) Dispatch(context.Context, Notification) error { return nil }

// HTTP posts notifications as JSON to a fixed endpoint.
type HTTP struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTP creates an HTTP dispatcher with a bounded default client.
func NewHTTP(endpoint string) *HTTP {
	return &HTTP{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTP) Dispatch(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: dispatch returned %s", resp.Status)
	}
	return nil
}
