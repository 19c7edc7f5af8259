package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnbchron/openai-orch/ledger"
	"github.com/johnbchron/openai-orch/request"
)

// runAttempt performs one attempt for the given work item under the
// per-attempt deadline, routing the capability call through the middleware
// chain. The snapshot snap reflects the entry after MarkInFlight and is
// what middleware observe.
//
// The capability call runs in its own goroutine so the deadline fires even
// against a capability that ignores its context. On timeout the attempt
// context is cancelled and the goroutine abandoned; the worker itself
// always returns, so no concurrency slot is leaked.
func (p *Pool) runAttempt(snap ledger.Entry, it *item) (any, error) {
	timeout := p.cfg.AttemptTimeout
	if h, ok := it.req.(request.TimeoutHinter); ok {
		if hint := h.TimeoutHint(); hint > 0 && hint < timeout {
			timeout = hint
		}
	}

	ctx, cancel := context.WithTimeout(p.baseCtx, timeout)
	defer cancel()

	// Track the cancel func so Cancel can abort a running attempt.
	key := it.id.String()
	p.trackActive(key, cancel)
	defer p.untrackActive(key)

	type result struct {
		payload any
		err     error
	}
	done := make(chan result, 1)

	go func() {
		var payload any
		err := p.mw(ctx, snap, func(ctx context.Context) error {
			var execErr error
			payload, execErr = it.req.Execute(ctx, p.creds)
			return execErr
		})
		done <- result{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v: %w", ErrAttemptTimeout, timeout, res.err)
		}
		return res.payload, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			// Cancelled via Cancel or pool shutdown, not a deadline.
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %v", ErrAttemptTimeout, timeout)
	}
}
