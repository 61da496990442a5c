// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

// waitForQueueDepth polls until the tier holds want live waiters.
func waitForQueueDepth(t *testing.T, s *Scheduler, p Priority, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.QueueDepth(p) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("queue depth for %s never reached %d (now %d)", p, want, s.QueueDepth(p))
}

func TestImmediateGrantUnderLimit(t *testing.T) {
	s := New(4)
	ctx := context.Background()

	var releases []func()
	for i := 0; i < 4; i++ {
		release, err := s.Acquire(ctx, PriorityNormal)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		releases = append(releases, release)
	}
	if s.Inflight() != 4 {
		t.Errorf("inflight = %d, want 4", s.Inflight())
	}
	for _, r := range releases {
		r()
	}
	if s.Inflight() != 0 {
		t.Errorf("inflight after release = %d, want 0", s.Inflight())
	}
}

func TestLimitNeverExceeded(t *testing.T) {
	const max = 3
	s := New(max)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		peak    int
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := s.Acquire(ctx, PriorityNormal)
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if peak > max {
		t.Errorf("peak concurrency %d exceeded limit %d", peak, max)
	}
}

func TestPriorityThenFIFODispatch(t *testing.T) {
	s := New(1)
	ctx := context.Background()

	hold, err := s.Acquire(ctx, PriorityNormal)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	order := make(chan string, 4)
	start := func(name string, p Priority) {
		go func() {
			release, err := s.Acquire(ctx, p)
			if err != nil {
				t.Errorf("%s acquire failed: %v", name, err)
				return
			}
			order <- name
			release()
		}()
	}

	// Enqueue in adversarial order; grants must follow priority then FIFO.
	start("low-1", PriorityLow)
	waitForQueueDepth(t, s, PriorityLow, 1)
	start("normal-1", PriorityNormal)
	waitForQueueDepth(t, s, PriorityNormal, 1)
	start("normal-2", PriorityNormal)
	waitForQueueDepth(t, s, PriorityNormal, 2)
	start("high-1", PriorityHigh)
	waitForQueueDepth(t, s, PriorityHigh, 1)

	hold()

	want := []string{"high-1", "normal-1", "normal-2", "low-1"}
	for _, expected := range want {
		select {
		case got := <-order:
			if got != expected {
				t.Fatalf("dispatch order: got %s, want %s", got, expected)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", expected)
		}
	}
}

func TestCancelledWaiterNeverDispatches(t *testing.T) {
	s := New(1)
	ctx := context.Background()

	hold, err := s.Acquire(ctx, PriorityNormal)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Acquire(cancelCtx, PriorityHigh)
		errCh <- err
	}()
	waitForQueueDepth(t, s, PriorityHigh, 1)

	cancel()
	if err := <-errCh; err == nil {
		t.Fatal("cancelled waiter should get an error")
	}

	// The slot must go to a live waiter, not the cancelled one.
	granted := make(chan struct{})
	go func() {
		release, err := s.Acquire(ctx, PriorityNormal)
		if err != nil {
			t.Errorf("acquire failed: %v", err)
			return
		}
		close(granted)
		release()
	}()
	waitForQueueDepth(t, s, PriorityNormal, 1)

	hold()
	select {
	case <-granted:
	case <-time.After(2 * time.Second):
		t.Fatal("slot was not handed past the cancelled waiter")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	release, err := s.Acquire(ctx, PriorityNormal)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()
	release() // second call must be a no-op

	if s.Inflight() != 0 {
		t.Errorf("inflight = %d, want 0", s.Inflight())
	}
}

func TestPriorityParse(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{"high", PriorityHigh},
		{"normal", PriorityNormal},
		{"low", PriorityLow},
		{"", PriorityNormal},
		{"bogus", PriorityNormal},
	}
	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultLimit(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := s.Acquire(ctx, PriorityNormal); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	if s.Inflight() != 8 {
		t.Errorf("default limit should be 8, inflight = %d", s.Inflight())
	}
}
