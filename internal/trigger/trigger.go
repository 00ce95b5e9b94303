// internal/trigger/trigger.go
package trigger

import (
	"context"
	"time"
)

// Event represents a trigger event. Path is the file the event concerns;
// it is empty for scheduled sweeps, where the daemon resolves the job's
// scan paths instead.
type Event struct {
	JobName   string
	Type      string
	Path      string
	Timestamp time.Time
	Data      map[string]any
}

// Trigger is the interface all triggers must implement
type Trigger interface {
	// Start begins watching for events, sending them to the channel
	Start(ctx context.Context, events chan<- Event) error
	// Stop stops the trigger
	Stop() error
	// JobName returns the name of the job this trigger belongs to
	JobName() string
}
