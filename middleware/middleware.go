// Package middleware provides composable middleware for request attempts.
// Middleware wraps the capability call synchronously and can modify
// execution (recover from panics, log, add tracing and metrics, etc.).
package middleware

import (
	"context"

	"github.com/johnbchron/openai-orch/ledger"
)

// Handler is the terminal function that performs the capability call.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, a snapshot of the ledger entry for the
// attempt being executed, and the next handler to call. Middleware MUST
// call next to continue the chain (unless short-circuiting on error).
type Middleware func(ctx context.Context, e ledger.Entry, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(recover, tracing, logging) executes as:
//
//	recover → tracing → logging → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, e ledger.Entry, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, e, prev)
			}
		}
		return h(ctx)
	}
}
