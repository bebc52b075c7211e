package scheduler

import "context"

// Job is a unit of work processed by the worker pool. Jobs are scoped
// to a single user so failures stay isolated.
type Job interface {
	// Execute runs the job. The context carries the pool's timeout and
	// must be respected for cancellation.
	Execute(ctx context.Context) error

	// UserID identifies whose data the job touches, for logging.
	UserID() string

	// Description is a short human-readable label for logs and traces.
	Description() string
}
