package lifecycle

import "context"

// Hook is a named shutdown step: closing the HTTP listener, draining the
// task worker, releasing the database and Redis pools.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}
