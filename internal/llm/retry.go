package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"researchnerd/internal/logging"
)

// RetryPolicy decides whether and when a failed remote call is retried.
// Clients call it around each HTTP round; the workflow never retries.
type RetryPolicy interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// NoRetry runs the operation once.
type NoRetry struct{}

// Do implements RetryPolicy.
func (NoRetry) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return op(ctx)
}

// ExponentialRetry retries transient RemoteCallErrors with exponential backoff.
type ExponentialRetry struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// NewBackOff overrides the schedule; tests use a zero backoff.
	NewBackOff func() backoff.BackOff
}

// Do implements RetryPolicy.
func (r ExponentialRetry) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var b backoff.BackOff
	if r.NewBackOff != nil {
		b = r.NewBackOff()
	} else {
		b = backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(r.InitialInterval),
			backoff.WithMaxInterval(r.MaxInterval),
			backoff.WithMaxElapsedTime(0),
		)
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(r.MaxRetries, 0))), ctx)

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op(ctx)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logging.APIWarn("attempt %d failed (%v), retrying in %v", attempt, err, next)
	}
	return backoff.RetryNotify(wrapped, b, notify)
}
