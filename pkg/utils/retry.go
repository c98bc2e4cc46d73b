package utils

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

// Retry runs f up to attempts times with exponential back-off starting at delay.
// It stops early when ctx is done.
func Retry(ctx context.Context, attempts uint, delay time.Duration, logger *zap.Logger, f func() error) error {
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		f,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if logger != nil {
				logger.Warn("Retry attempt", zap.Uint("attempt", n+1), zap.Error(err))
			}
		}),
	)
}
