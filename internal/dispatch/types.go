package dispatch

import (
	"context"

	"github.com/example/bdsms/internal/transport"
)

// Request is the driver-facing view of one dispatch.
type Request struct {
	Recipients []string
	Message    string
	Policy     transport.Policy
}

// Outcome is the normalised result of a successful call.
type Outcome struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
}

// Driver sends a request through a single gateway. Drivers hold no
// per-dispatch state and are shared across goroutines.
type Driver interface {
	Name() string
	Validate() error
	Execute(ctx context.Context, req Request) (*Outcome, error)
}

// Resolver looks up a driver by name.
type Resolver interface {
	Driver(name string) (Driver, error)
}

// Enqueuer hands jobs to an external queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job, target Target) (*PendingDispatch, error)
}

// Target optionally selects a named queue on a named connection. Empty fields
// fall back to the enqueuer's defaults.
type Target struct {
	Queue      string
	Connection string
}
