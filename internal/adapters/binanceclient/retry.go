package binanceclient

import (
	"context"
	"time"

	"cryptoLedger/internal/ports"

	"github.com/jpillora/backoff"
)

// retryPolicy retries transient exchange failures with exponential backoff.
type retryPolicy struct {
	maxRetries int
	min        time.Duration
	max        time.Duration
}

func newRetryPolicy(maxRetries int, min, max time.Duration) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if min <= 0 {
		min = 500 * time.Millisecond
	}
	if max < min {
		max = min
	}
	return retryPolicy{maxRetries: maxRetries, min: min, max: max}
}

// do runs fn until it succeeds, returns a non-retryable error, or retries run out.
func (p retryPolicy) do(ctx context.Context, log ports.Logger, op string, fn func() error) error {
	b := &backoff.Backoff{Min: p.min, Max: p.max, Factor: 2, Jitter: true}

	for {
		err := fn()
		if err == nil || !ports.IsRetryable(err) || int(b.Attempt()) >= p.maxRetries {
			return err
		}

		wait := b.Duration()
		log.Warn(ctx, "retrying exchange call", map[string]interface{}{
			"operation": op,
			"attempt":   int(b.Attempt()),
			"wait":      wait.String(),
			"error":     err.Error(),
		})

		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}
