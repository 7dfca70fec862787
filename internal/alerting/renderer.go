// Package alerting implements the background half of the alert pipeline.
// It consumes the alert queue, maintains the offline route cache, and
// renders user-facing notifications. Rendering follows replace-not-stack
// semantics: a new alert with the same tag replaces the previous one, so
// a flapping threshold can never pile up duplicate notifications.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"trainwatch/internal/types"
)

// MemoryRenderer keeps at most one active alert per tag in memory. It backs
// local runs and tests, and doubles as the source of truth for what is
// currently displayed.
type MemoryRenderer struct {
	mu     sync.Mutex
	active map[types.AlertTag]types.RenderedAlert
}

// Compile-time assertion that MemoryRenderer implements types.AlertRenderer.
var _ types.AlertRenderer = (*MemoryRenderer)(nil)

// NewMemoryRenderer creates an empty MemoryRenderer.
func NewMemoryRenderer() *MemoryRenderer {
	return &MemoryRenderer{active: make(map[types.AlertTag]types.RenderedAlert)}
}

// Render displays the alert, replacing any active alert with the same tag.
func (r *MemoryRenderer) Render(_ context.Context, alert types.RenderedAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[alert.Tag] = alert
	return nil
}

// Clear removes the active alert for the tag, if any.
func (r *MemoryRenderer) Clear(_ context.Context, tag types.AlertTag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, tag)
	return nil
}

// Active returns the currently displayed alert for the tag.
func (r *MemoryRenderer) Active(tag types.AlertTag) (types.RenderedAlert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.active[tag]
	return alert, ok
}

// Count returns the number of distinct tags with an active alert.
func (r *MemoryRenderer) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// maxErrorBodyRead limits how much of an endpoint error response is read
// for the error message.
const maxErrorBodyRead = 2048

// webhookEvent is the JSON body posted to the notification endpoint.
type webhookEvent struct {
	Action string               `json:"action"`
	Tag    types.AlertTag       `json:"tag"`
	Alert  *types.RenderedAlert `json:"alert,omitempty"`
}

// WebhookRenderer forwards render and clear events to an external
// notification endpoint over HTTP POST. The endpoint owns the actual
// display surface; this side only guarantees tag semantics are conveyed.
type WebhookRenderer struct {
	endpoint   string
	httpClient *http.Client
}

// Compile-time assertion that WebhookRenderer implements types.AlertRenderer.
var _ types.AlertRenderer = (*WebhookRenderer)(nil)

// NewWebhookRenderer creates a WebhookRenderer posting to the given endpoint.
// A nil client falls back to http.DefaultClient.
func NewWebhookRenderer(endpoint string, httpClient *http.Client) *WebhookRenderer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebhookRenderer{endpoint: endpoint, httpClient: httpClient}
}

// Render posts a render event for the alert.
func (r *WebhookRenderer) Render(ctx context.Context, alert types.RenderedAlert) error {
	return r.post(ctx, webhookEvent{Action: "render", Tag: alert.Tag, Alert: &alert})
}

// Clear posts a clear event for the tag.
func (r *WebhookRenderer) Clear(ctx context.Context, tag types.AlertTag) error {
	return r.post(ctx, webhookEvent{Action: "clear", Tag: tag})
}

func (r *WebhookRenderer) post(ctx context.Context, event webhookEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("alerting: marshaling %s event: %w", event.Action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerting: building %s request: %w", event.Action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDispatch,
			fmt.Sprintf("posting %s event to notification endpoint", event.Action), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyRead))
		return types.NewAppError(types.ErrCodeInternalDispatch,
			fmt.Sprintf("notification endpoint returned %d: %s", resp.StatusCode, string(snippet)), nil)
	}
	return nil
}
