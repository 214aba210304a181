// Package retry implements the bounded exponential backoff shared by the
// commerce and text generation clients.
package retry

import (
	"context"
	"errors"
	"time"
)

// maxRetryAfter caps a server supplied Retry-After so a misbehaving upstream
// cannot park a run indefinitely.
const maxRetryAfter = time.Minute

// Policy configures a retry loop.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	HonorRetryAfter bool

	// Retryable decides whether an error is transient. Nil means never retry.
	Retryable func(error) bool

	// OnRetry is invoked before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// RetryAfterer is implemented by errors carrying a server supplied delay.
type RetryAfterer interface {
	RetryAfterDelay() time.Duration
}

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends or the attempt budget is spent. It returns the number of attempts made
// and the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return attempt, err
		}
		if p.Retryable == nil || !p.Retryable(err) || attempt == attempts {
			return attempt, err
		}

		delay := p.Backoff(attempt)
		if p.HonorRetryAfter {
			var ra RetryAfterer
			if errors.As(err, &ra) {
				if d := ra.RetryAfterDelay(); d > 0 {
					delay = min(d, maxRetryAfter)
				}
			}
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, err
		}
	}
	return attempts, err
}

// Backoff returns the delay before the attempt following attempt n (1-based):
// BaseDelay doubled per attempt, capped at MaxDelay.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
