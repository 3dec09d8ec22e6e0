// SPDX-License-Identifier: Apache-2.0

// Package retry runs an operation with bounded retries and capped exponential
// backoff.
package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/metrics"
	"github.com/cenkalti/backoff/v4"
)

// Operation is one attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) (T, error)

// Permanent marks err as not worth retrying. Do returns the wrapped error
// itself, not the marker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do attempts op up to policy.MaxRetries+1 times. Between attempts it waits
// min(BaseDelay*2^n, MaxDelay) where n is the zero-based index of the failed
// attempt. The error of the last attempt is returned unchanged; a canceled
// context ends the wait early and returns the context error.
func Do[T any](ctx context.Context, policy domain.RetryPolicy, logger *slog.Logger, op Operation[T]) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(policy), uint64(maxRetries)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return op(ctx, attempt)
	}, b, func(err error, wait time.Duration) {
		metrics.IncStepRetries()
		logger.Warn("attempt failed - retrying",
			"attempt", attempt,
			"max_attempts", maxRetries+1,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
	})
}

// Delay returns the wait after the zero-based failed attempt n.
func Delay(policy domain.RetryPolicy, n int) time.Duration {
	b := newBackOff(policy)
	var d time.Duration
	for i := 0; i <= n; i++ {
		d = b.NextBackOff()
	}
	return d
}

func newBackOff(policy domain.RetryPolicy) *backoff.ExponentialBackOff {
	base := policy.BaseDelay
	if base < 0 {
		base = 0
	}
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(math.MaxInt64)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}
