// internal/trigger/webhook_test.go
package trigger

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veilproject/veil/internal/config"
)

func newTestWebhook(t *testing.T, cfg config.Trigger) *Webhook {
	t.Helper()
	w, err := NewWebhook("hook-job", cfg)
	if err != nil {
		t.Fatalf("NewWebhook: %v", err)
	}
	return w
}

func TestWebhook_HandleRequest(t *testing.T) {
	w := newTestWebhook(t, config.Trigger{
		Type:       "webhook",
		ListenPath: "/hooks/scrub",
	})

	events := make(chan Event, 1)
	req := httptest.NewRequest("POST", "/hooks/scrub", strings.NewReader(`{"path": "/tmp/target.log"}`))

	if !w.HandleRequest(req, events) {
		t.Fatal("HandleRequest returned false")
	}

	ev := <-events
	if ev.JobName != "hook-job" {
		t.Errorf("JobName = %q", ev.JobName)
	}
	if ev.Type != "webhook" {
		t.Errorf("Type = %q", ev.Type)
	}
	if ev.Path != "/tmp/target.log" {
		t.Errorf("Path = %q", ev.Path)
	}
	if ev.Data["http_method"] != "POST" {
		t.Errorf("http_method = %v", ev.Data["http_method"])
	}
}

func TestWebhook_EmptyBodySweepsScanPaths(t *testing.T) {
	w := newTestWebhook(t, config.Trigger{Type: "webhook", ListenPath: "/hooks/x"})

	events := make(chan Event, 1)
	req := httptest.NewRequest("POST", "/hooks/x", nil)

	if !w.HandleRequest(req, events) {
		t.Fatal("HandleRequest returned false")
	}
	if ev := <-events; ev.Path != "" {
		t.Errorf("empty body should leave Path empty, got %q", ev.Path)
	}
}

func TestWebhook_MethodFilter(t *testing.T) {
	w := newTestWebhook(t, config.Trigger{
		Type:           "webhook",
		ListenPath:     "/hooks/x",
		AllowedMethods: []string{"POST"},
	})

	events := make(chan Event, 1)

	if w.HandleRequest(httptest.NewRequest("GET", "/hooks/x", nil), events) {
		t.Error("GET should be rejected when only POST is allowed")
	}
	if !w.HandleRequest(httptest.NewRequest("POST", "/hooks/x", nil), events) {
		t.Error("POST should be accepted")
	}
}

func TestWebhook_SecretHeader(t *testing.T) {
	t.Setenv("HOOK_SECRET", "s3cret")

	w := newTestWebhook(t, config.Trigger{
		Type:          "webhook",
		ListenPath:    "/hooks/x",
		RequireSecret: true,
		SecretHeader:  "X-Hook-Secret",
		SecretEnvVar:  "HOOK_SECRET",
	})

	events := make(chan Event, 2)

	req := httptest.NewRequest("POST", "/hooks/x", nil)
	if w.HandleRequest(req, events) {
		t.Error("missing secret header should be rejected")
	}

	req = httptest.NewRequest("POST", "/hooks/x", nil)
	req.Header.Set("X-Hook-Secret", "wrong")
	if w.HandleRequest(req, events) {
		t.Error("wrong secret should be rejected")
	}

	req = httptest.NewRequest("POST", "/hooks/x", nil)
	req.Header.Set("X-Hook-Secret", "s3cret")
	if !w.HandleRequest(req, events) {
		t.Error("correct secret should be accepted")
	}
}

func TestNewWebhook_RequireSecretWithoutSecretFails(t *testing.T) {
	// A required-but-unresolvable secret must not fail open into an
	// unauthenticated webhook.
	_, err := NewWebhook("hook-job", config.Trigger{
		Type:          "webhook",
		ListenPath:    "/hooks/x",
		RequireSecret: true,
		SecretHeader:  "X-Hook-Secret",
		SecretEnvVar:  "VEIL_TEST_UNSET_SECRET",
	})
	if err == nil {
		t.Fatal("expected error when the secret env var is unset")
	}

	_, err = NewWebhook("hook-job", config.Trigger{
		Type:          "webhook",
		ListenPath:    "/hooks/x",
		RequireSecret: true,
		SecretHeader:  "X-Hook-Secret",
	})
	if err == nil {
		t.Fatal("expected error when no secret env var is configured")
	}
}

func TestNew_Factory(t *testing.T) {
	tests := []struct {
		triggerType string
		wantErr     bool
	}{
		{"scheduled", false},
		{"webhook", false},
		{"carrier-pigeon", true},
	}

	for _, tt := range tests {
		cfg := config.Trigger{Type: tt.triggerType}
		_, err := New("j", cfg)
		if tt.wantErr && err == nil {
			t.Errorf("New(%q): expected error", tt.triggerType)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("New(%q): %v", tt.triggerType, err)
		}
	}
}
