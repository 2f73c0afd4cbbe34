// Package opts holds the activity options shared by research workflows.
package opts

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SessionRetryPolicy retries transient activity failures with backoff.
// Errors marked non-retryable by the activities still fail immediately.
func SessionRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    3,
	}
}

// SessionActivityOptions returns options for the long-running session
// activities. heartbeat <= 0 disables the heartbeat timeout.
func SessionActivityOptions(startToClose, heartbeat time.Duration) workflow.ActivityOptions {
	o := workflow.ActivityOptions{
		StartToCloseTimeout: startToClose,
		RetryPolicy:         SessionRetryPolicy(),
	}
	if heartbeat > 0 {
		o.HeartbeatTimeout = heartbeat
	}
	return o
}

// WithSessionOptions applies SessionActivityOptions to a context
func WithSessionOptions(ctx workflow.Context, startToClose, heartbeat time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, SessionActivityOptions(startToClose, heartbeat))
}

// ProgressActivityOptions returns standardized options for best-effort
// progress events: short and never retried.
func ProgressActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
}

// WithProgressOptions applies standardized progress activity options to a context
func WithProgressOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, ProgressActivityOptions())
}
