package portal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/accrt/portal/internal/store"
)

// Retry calls fn up to attempts times, waiting backoff, then twice that, and so
// on between calls. Only store availability errors are retried; any other
// error, or a cancelled ctx, returns at once.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := range attempts {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !store.IsUnavailable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := backoff << attempt
		slog.Warn("store unavailable, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}
