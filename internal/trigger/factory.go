// internal/trigger/factory.go
package trigger

import (
	"fmt"

	"github.com/veilproject/veil/internal/config"
)

// New creates a trigger based on the configuration type
func New(jobName string, cfg config.Trigger) (Trigger, error) {
	switch cfg.Type {
	case "filesystem":
		return NewFilesystem(jobName, cfg)
	case "scheduled":
		return NewScheduled(jobName, cfg)
	case "webhook":
		return NewWebhook(jobName, cfg)
	default:
		return nil, fmt.Errorf("unknown trigger type: %s", cfg.Type)
	}
}
