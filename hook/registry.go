package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/johnbchron/openai-orch/ledger"
)

// Named entry types pair a hook implementation with the hook name captured
// at registration time. This avoids type-asserting back to Hook inside the
// emit methods.
type submittedEntry struct {
	name string
	hook RequestSubmitted
}

type startedEntry struct {
	name string
	hook RequestStarted
}

type completedEntry struct {
	name string
	hook RequestCompleted
}

type failedEntry struct {
	name string
	hook RequestFailed
}

type retryingEntry struct {
	name string
	hook RequestRetrying
}

type cancelledEntry struct {
	name string
	hook RequestCancelled
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to them.
// It type-caches hooks at registration time so emit calls iterate only over
// hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	submitted []submittedEntry
	started   []startedEntry
	completed []completedEntry
	failed    []failedEntry
	retrying  []retryingEntry
	cancelled []cancelledEntry
	shutdown  []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order. Hook errors are logged
// and never propagate into request execution.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if hk, ok := h.(RequestSubmitted); ok {
		r.submitted = append(r.submitted, submittedEntry{name, hk})
	}
	if hk, ok := h.(RequestStarted); ok {
		r.started = append(r.started, startedEntry{name, hk})
	}
	if hk, ok := h.(RequestCompleted); ok {
		r.completed = append(r.completed, completedEntry{name, hk})
	}
	if hk, ok := h.(RequestFailed); ok {
		r.failed = append(r.failed, failedEntry{name, hk})
	}
	if hk, ok := h.(RequestRetrying); ok {
		r.retrying = append(r.retrying, retryingEntry{name, hk})
	}
	if hk, ok := h.(RequestCancelled); ok {
		r.cancelled = append(r.cancelled, cancelledEntry{name, hk})
	}
	if hk, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, hk})
	}
}

// Hooks returns the registered hooks in registration order.
func (r *Registry) Hooks() []Hook { return r.hooks }

func (r *Registry) hookError(name, event string, err error) {
	r.logger.Warn("hook error",
		slog.String("hook", name),
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
}

// EmitRequestSubmitted notifies RequestSubmitted hooks.
func (r *Registry) EmitRequestSubmitted(ctx context.Context, e ledger.Entry) {
	for _, h := range r.submitted {
		if err := h.hook.OnRequestSubmitted(ctx, e); err != nil {
			r.hookError(h.name, "request_submitted", err)
		}
	}
}

// EmitRequestStarted notifies RequestStarted hooks.
func (r *Registry) EmitRequestStarted(ctx context.Context, e ledger.Entry) {
	for _, h := range r.started {
		if err := h.hook.OnRequestStarted(ctx, e); err != nil {
			r.hookError(h.name, "request_started", err)
		}
	}
}

// EmitRequestCompleted notifies RequestCompleted hooks.
func (r *Registry) EmitRequestCompleted(ctx context.Context, e ledger.Entry, elapsed time.Duration) {
	for _, h := range r.completed {
		if err := h.hook.OnRequestCompleted(ctx, e, elapsed); err != nil {
			r.hookError(h.name, "request_completed", err)
		}
	}
}

// EmitRequestFailed notifies RequestFailed hooks.
func (r *Registry) EmitRequestFailed(ctx context.Context, e ledger.Entry, err error) {
	for _, h := range r.failed {
		if hookErr := h.hook.OnRequestFailed(ctx, e, err); hookErr != nil {
			r.hookError(h.name, "request_failed", hookErr)
		}
	}
}

// EmitRequestRetrying notifies RequestRetrying hooks.
func (r *Registry) EmitRequestRetrying(ctx context.Context, e ledger.Entry, attempt int, nextAttemptAt time.Time) {
	for _, h := range r.retrying {
		if err := h.hook.OnRequestRetrying(ctx, e, attempt, nextAttemptAt); err != nil {
			r.hookError(h.name, "request_retrying", err)
		}
	}
}

// EmitRequestCancelled notifies RequestCancelled hooks.
func (r *Registry) EmitRequestCancelled(ctx context.Context, e ledger.Entry) {
	for _, h := range r.cancelled {
		if err := h.hook.OnRequestCancelled(ctx, e); err != nil {
			r.hookError(h.name, "request_cancelled", err)
		}
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, h := range r.shutdown {
		if err := h.hook.OnShutdown(ctx); err != nil {
			r.hookError(h.name, "shutdown", err)
		}
	}
}
