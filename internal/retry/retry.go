// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package retry decides whether and when a failed upstream attempt is
// retried. Only transient failures (network errors, timeouts, 5xx) are
// retried; 4xx and parse failures surface immediately. Delays follow
// exponential backoff with uniform jitter to avoid synchronized retry
// storms. The retry budget is per load intent and independent of the
// circuit breaker's longer-horizon failure count.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/tomtom215/contentgate/internal/faults"
	"github.com/tomtom215/contentgate/internal/metrics"
)

// Policy computes retry decisions and backoff delays.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay seeds the exponential backoff. Attempt n (0-based) waits
	// BaseDelay*2^n plus jitter in [0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// ShouldRetry reports whether the attempt-th try (0-based) that failed
// with err should be retried.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxRetries {
		return false
	}
	return faults.IsTransient(err)
}

// NextDelay returns the backoff before retry number attempt (0-based:
// attempt 0 is the delay before the first retry).
func (p Policy) NextDelay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	// Shift, guarding against overflow on absurd attempt counts.
	delay := base
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}

	delay += time.Duration(rand.Int64N(int64(base)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Wait blocks for the backoff of the given attempt, or returns the context
// error if the wait is cancelled.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	metrics.Retries.Inc()
	select {
	case <-time.After(p.NextDelay(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
