package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/johnbchron/openai-orch/ledger"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace, so a
// faulting capability call counts as an attempt failure instead of killing
// the worker.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, e ledger.Entry, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("request attempt panicked",
					slog.String("request_id", e.ID.String()),
					slog.Int("attempt", e.Attempt),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in request %s: %v", e.ID.String(), r)
			}
		}()
		return next(ctx)
	}
}
