// Package request defines the executable-request capability contract.
//
// A Request is a pure function from credentials to a response payload or a
// typed failure. The dispatcher treats it as an opaque, possibly slow,
// possibly flaky remote call and imposes the only timeout/retry discipline;
// implementations must not retry internally or share mutable state between
// invocations.
package request

import (
	"context"
	"time"

	"github.com/johnbchron/openai-orch/keys"
)

// Request is implemented by every request variant the orchestrator can
// execute. The bundled chat and embed variants are two implementations;
// callers may supply their own.
type Request interface {
	// Execute performs one attempt against the remote API. The context
	// carries the per-attempt deadline; implementations should pass it
	// through to any I/O they perform.
	Execute(ctx context.Context, creds keys.Keys) (any, error)
}

// Func adapts a plain function to the Request interface.
type Func func(ctx context.Context, creds keys.Keys) (any, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, creds keys.Keys) (any, error) {
	return f(ctx, creds)
}

// TimeoutHinter is optionally implemented by requests that can estimate
// their own completion time (for example from an output token budget). The
// dispatcher uses min(hint, policy timeout) as the attempt deadline, so a
// hint can only tighten the policy, never extend it.
type TimeoutHinter interface {
	TimeoutHint() time.Duration
}
