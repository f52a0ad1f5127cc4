package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/retry"
)

// stepPolicy builds the bounded retry policy for one named browser step.
// A closed session is never retried; context errors are handled by retry.
func stepPolicy(step string, attempts int, backoff time.Duration, logger *slog.Logger, metrics *observability.Metrics) retry.Policy {
	return retry.Policy{
		Attempts: attempts,
		Backoff:  backoff,
		Retryable: func(err error) bool {
			return !errors.Is(err, browser.ErrClosed)
		},
		OnRetry: func(attempt int, err error) {
			logger.Warn("retrying step", "step", step, "attempt", attempt, "error", err)
			metrics.RecordRetry(step)
		},
	}
}

// pause sleeps for a random duration in [min, max].
func pause(ctx context.Context, min, max time.Duration) error {
	return retry.Sleep(ctx, jitter(min, max))
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// isInterrupt reports whether the run's own context is done. Timeouts of
// internal waits are step failures, not interrupts.
func isInterrupt(ctx context.Context) bool {
	return ctx.Err() != nil
}

// navigate loads url, giving up after timeout. A page that does not finish
// loading in time yields browser.ErrTimeout.
func navigate(ctx context.Context, s browser.Session, url string, timeout time.Duration) error {
	if timeout <= 0 {
		return s.Navigate(ctx, url)
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.Navigate(navCtx, url)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && navCtx.Err() != nil {
		return fmt.Errorf("%w: page load %s after %s", browser.ErrTimeout, url, timeout)
	}
	return err
}
