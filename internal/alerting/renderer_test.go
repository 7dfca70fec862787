package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"trainwatch/internal/types"
)

func TestWebhookRenderer_RenderPostsAlert(t *testing.T) {
	var (
		mu     sync.Mutex
		events []webhookEvent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		var ev webhookEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			t.Errorf("unmarshal event: %v", err)
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewWebhookRenderer(srv.URL, srv.Client())
	err := r.Render(context.Background(), types.RenderedAlert{
		Tag:    types.TagDestinationAlarm,
		Title:  "Wake up! Arriving at Villupuram Jn",
		Body:   "You are 1.40 km from Villupuram Jn.",
		Sticky: true,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := r.Clear(context.Background(), types.TagPreAlert); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Action != "render" || events[0].Tag != types.TagDestinationAlarm {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].Alert == nil || !events[0].Alert.Sticky {
		t.Errorf("render event alert = %+v, want sticky alert", events[0].Alert)
	}
	if events[1].Action != "clear" || events[1].Tag != types.TagPreAlert {
		t.Errorf("second event = %+v", events[1])
	}
	if events[1].Alert != nil {
		t.Errorf("clear event should carry no alert, got %+v", events[1].Alert)
	}
}

func TestWebhookRenderer_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewWebhookRenderer(srv.URL, srv.Client())
	err := r.Render(context.Background(), types.RenderedAlert{Tag: types.TagPreAlert})
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInternalDispatch {
		t.Errorf("error = %v, want internal_dispatch_error", err)
	}
}

func TestMemoryRenderer_ReplacesByTag(t *testing.T) {
	r := NewMemoryRenderer()
	ctx := context.Background()

	_ = r.Render(ctx, types.RenderedAlert{Tag: types.TagPreAlert, Title: "first"})
	_ = r.Render(ctx, types.RenderedAlert{Tag: types.TagPreAlert, Title: "second"})
	_ = r.Render(ctx, types.RenderedAlert{Tag: types.TagDestinationAlarm, Title: "alarm"})

	if r.Count() != 2 {
		t.Errorf("count = %d, want 2", r.Count())
	}
	alert, ok := r.Active(types.TagPreAlert)
	if !ok || alert.Title != "second" {
		t.Errorf("active pre-alert = %+v, want replacement", alert)
	}

	_ = r.Clear(ctx, types.TagPreAlert)
	if _, ok := r.Active(types.TagPreAlert); ok {
		t.Error("pre-alert should be cleared")
	}
	if r.Count() != 1 {
		t.Errorf("count after clear = %d, want 1", r.Count())
	}
}
