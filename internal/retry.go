package internal

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

// Retry retries tryFn until success, cancellation of ctx, or exhaustion of the retries. tryFn runs retries+1 times
// at most, waiting delay between the first two attempts and backing off up to maxDelay. A zero maxDelay disables
// the backoff. The last error is returned.
func Retry(ctx context.Context, tryFn func() error, retries uint, delay, maxDelay time.Duration) error {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(retries + 1),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
	}
	if maxDelay > 0 {
		opts = append(opts, retry.DelayType(retry.BackOffDelay), retry.MaxDelay(maxDelay))
	} else {
		opts = append(opts, retry.DelayType(retry.FixedDelay))
	}
	return retry.Do(tryFn, opts...)
}
