package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts bounds store submissions per batch.
const DefaultMaxAttempts = 10

// RetryPolicy decides how often and how patiently a side-effecting call is
// repeated. It knows nothing about what the call does: callers mark errors
// that must not be retried with backoff.Permanent.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialInterval and MaxInterval shape the default exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// NewBackOff overrides the default exponential backoff when set.
	// Tests use it to supply backoff.ZeroBackOff.
	NewBackOff func() backoff.BackOff
}

// DefaultRetryPolicy returns 10 attempts with exponential backoff
// from 100ms up to 5s between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// RetryNotify is called after a failed attempt that will be retried.
type RetryNotify func(err error, attempt int, wait time.Duration)

// Do calls op until it succeeds, returns a permanent error, the attempt
// budget is spent or ctx is done. It returns the number of calls made and
// the last error (unwrapped from backoff.Permanent).
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, notify RetryNotify) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(p.backOff(), uint64(maxAttempts-1)),
		ctx,
	)

	attempts := 0
	err := backoff.RetryNotify(
		func() error {
			attempts++
			return op(attempts)
		},
		b,
		func(err error, wait time.Duration) {
			if notify != nil {
				notify(err, attempts, wait)
			}
		},
	)
	return attempts, err
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	// The attempt budget bounds the retries, not wall time.
	eb.MaxElapsedTime = 0
	return eb
}
