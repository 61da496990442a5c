// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/contentgate/internal/faults"
)

func TestShouldRetryBudget(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	transient := &faults.HTTPServerError{URL: "http://x", StatusCode: 503}

	for attempt := 0; attempt < 3; attempt++ {
		if !p.ShouldRetry(transient, attempt) {
			t.Errorf("attempt %d within budget should retry", attempt)
		}
	}
	if p.ShouldRetry(transient, 3) {
		t.Error("attempt at MaxRetries must not retry")
	}
}

func TestShouldRetryOnlyTransient(t *testing.T) {
	p := DefaultPolicy()

	if p.ShouldRetry(&faults.HTTPClientError{URL: "http://x", StatusCode: 404}, 0) {
		t.Error("4xx must not be retried")
	}
	if p.ShouldRetry(&faults.ParseError{URL: "http://x", Reason: "bad"}, 0) {
		t.Error("parse errors must not be retried")
	}
	if p.ShouldRetry(nil, 0) {
		t.Error("nil error must not be retried")
	}
	if !p.ShouldRetry(&faults.NetworkError{URL: "http://x", Err: errors.New("reset")}, 0) {
		t.Error("network errors should be retried")
	}
	if !p.ShouldRetry(&faults.TimeoutError{URL: "http://x", Err: context.DeadlineExceeded}, 0) {
		t.Error("timeouts should be retried")
	}
}

func TestNextDelayGrowsAndCaps(t *testing.T) {
	p := Policy{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: 800 * time.Millisecond}

	for attempt := 0; attempt < 10; attempt++ {
		d := p.NextDelay(attempt)

		// Lower bound: the un-jittered exponential floor, capped.
		floor := p.BaseDelay << attempt
		if floor > p.MaxDelay {
			floor = p.MaxDelay
		}
		if d < p.BaseDelay {
			t.Errorf("attempt %d: delay %v below base", attempt, d)
		}
		if d > p.MaxDelay {
			t.Errorf("attempt %d: delay %v above cap %v", attempt, d, p.MaxDelay)
		}
		_ = floor
	}
}

func TestNextDelayJitterVaries(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Minute}

	seen := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		seen[p.NextDelay(0)] = true
	}
	if len(seen) < 2 {
		t.Error("jitter should produce varying delays")
	}
}

func TestWaitCancellable(t *testing.T) {
	p := Policy{MaxRetries: 1, BaseDelay: 10 * time.Second, MaxDelay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Wait(ctx, 0)
	if err == nil {
		t.Fatal("expected context error from cancelled wait")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled wait should return promptly")
	}
}

func TestWaitCompletes(t *testing.T) {
	p := Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	if err := p.Wait(context.Background(), 0); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
}
