// internal/trigger/webhook.go
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/secure"
)

// Webhook handles HTTP webhook triggers. A request to the listen path
// fires the job; the optional JSON body {"path": "..."} targets a single
// file, otherwise the job's scan paths are swept.
type Webhook struct {
	jobName        string
	listenPath     string
	allowedMethods map[string]bool
	requireSecret  bool
	secretHeader   string
	secret         string
}

// NewWebhook creates a new webhook trigger
func NewWebhook(jobName string, cfg config.Trigger) (*Webhook, error) {
	methods := make(map[string]bool)
	for _, m := range cfg.AllowedMethods {
		methods[m] = true
	}

	// require_secret with no resolvable secret would silently accept
	// every request; refuse to register the webhook instead.
	var secret string
	if cfg.RequireSecret {
		if cfg.SecretEnvVar != "" {
			secret = os.Getenv(cfg.SecretEnvVar)
		}
		if secret == "" {
			return nil, fmt.Errorf("webhook for job %s requires a secret but env var %q is unset", jobName, cfg.SecretEnvVar)
		}
	}

	return &Webhook{
		jobName:        jobName,
		listenPath:     cfg.ListenPath,
		allowedMethods: methods,
		requireSecret:  cfg.RequireSecret,
		secretHeader:   cfg.SecretHeader,
		secret:         secret,
	}, nil
}

func (w *Webhook) JobName() string {
	return w.jobName
}

func (w *Webhook) ListenPath() string {
	return w.listenPath
}

// Start for webhook just blocks until context is cancelled
// The actual HTTP handling is done by the shared server
func (w *Webhook) Start(ctx context.Context, events chan<- Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (w *Webhook) Stop() error {
	return nil
}

// HandleRequest processes an incoming HTTP request
func (w *Webhook) HandleRequest(r *http.Request, events chan<- Event) bool {
	// Check method
	if len(w.allowedMethods) > 0 && !w.allowedMethods[r.Method] {
		return false
	}

	// Check secret if required; the constructor guarantees a non-empty
	// secret whenever requireSecret is set.
	if w.requireSecret {
		headerVal := r.Header.Get(w.secretHeader)
		if !secure.ConstantTimeEqual(headerVal, w.secret) {
			return false
		}
	}

	body, _ := io.ReadAll(r.Body)

	// An optional JSON body can name the file to redact
	var payload struct {
		Path string `json:"path"`
	}
	if len(body) > 0 {
		json.Unmarshal(body, &payload)
	}

	events <- Event{
		JobName:   w.jobName,
		Type:      "webhook",
		Path:      payload.Path,
		Timestamp: time.Now(),
		Data: map[string]any{
			"http_method": r.Method,
			"http_path":   r.URL.Path,
		},
	}

	return true
}
