// Package hook defines the lifecycle hook system for the orchestrator.
// Hooks are notified of request lifecycle events (submitted, started,
// completed, failed, etc.) and can react to them — logging, metrics,
// tracing, etc.
//
// Each lifecycle event is a separate interface so hooks opt in only to the
// events they care about.
package hook

import (
	"context"
	"time"

	"github.com/johnbchron/openai-orch/ledger"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// RequestSubmitted is called after a request's ledger entry is created.
type RequestSubmitted interface {
	OnRequestSubmitted(ctx context.Context, e ledger.Entry) error
}

// RequestStarted is called when a worker begins an attempt.
type RequestStarted interface {
	OnRequestStarted(ctx context.Context, e ledger.Entry) error
}

// RequestCompleted is called after a request settles Succeeded.
type RequestCompleted interface {
	OnRequestCompleted(ctx context.Context, e ledger.Entry, elapsed time.Duration) error
}

// RequestFailed is called when a request settles Failed (retries exhausted).
type RequestFailed interface {
	OnRequestFailed(ctx context.Context, e ledger.Entry, err error) error
}

// RequestRetrying is called when an attempt fails but a retry is scheduled.
type RequestRetrying interface {
	OnRequestRetrying(ctx context.Context, e ledger.Entry, attempt int, nextAttemptAt time.Time) error
}

// RequestCancelled is called when a request settles Cancelled.
type RequestCancelled interface {
	OnRequestCancelled(ctx context.Context, e ledger.Entry) error
}

// Shutdown is called during graceful orchestrator shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
