package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/johnbchron/openai-orch/ledger"
)

// Logging returns middleware that logs attempt start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, e ledger.Entry, next Handler) error {
		logger.Debug("attempt started",
			slog.String("request_id", e.ID.String()),
			slog.Int("attempt", e.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Debug("attempt failed",
				slog.String("request_id", e.ID.String()),
				slog.Int("attempt", e.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("attempt completed",
				slog.String("request_id", e.ID.String()),
				slog.Int("attempt", e.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
