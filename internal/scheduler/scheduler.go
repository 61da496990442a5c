// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package scheduler bounds the number of concurrent in-flight upstream
// operations and queues the excess by priority.
//
// Under the concurrency limit every request acquires a slot immediately.
// At the limit, waiters queue in three priority tiers (high, normal, low),
// FIFO within a tier; a lower tier never overtakes a higher one. When a
// slot is released it is handed directly to the next eligible waiter in
// the same synchronous step, so there is no polling delay.
package scheduler

import (
	"context"
	"sync"

	"github.com/tomtom215/contentgate/internal/metrics"
)

// Priority orders queued requests. High priority content is what the user
// is looking at; low priority is speculative prefetch.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

// String returns the wire name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Parse maps a wire name to a Priority, defaulting to normal.
func Parse(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// waiter is a queued acquisition. granted and canceled are guarded by the
// scheduler mutex; grant is closed exactly once, under the mutex, when the
// slot is handed over.
type waiter struct {
	grant    chan struct{}
	granted  bool
	canceled bool
}

// Scheduler is the bounded-concurrency request scheduler. One instance is
// shared by all loads; safe for concurrent use.
type Scheduler struct {
	mu            sync.Mutex
	maxConcurrent int
	inflight      int
	queues        [3][]*waiter // indexed by Priority
}

// New creates a scheduler permitting maxConcurrent in-flight operations.
func New(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Scheduler{maxConcurrent: maxConcurrent}
}

// Acquire obtains a concurrency slot, blocking in the priority queue when
// the limit is reached. The returned release function must be called
// exactly once when the operation completes (success, failure, or
// cancellation); it hands the slot to the next eligible waiter.
//
// If ctx is done before a slot is granted, the waiter is abandoned and
// ctx.Err() returned.
func (s *Scheduler) Acquire(ctx context.Context, priority Priority) (release func(), err error) {
	s.mu.Lock()
	if s.inflight < s.maxConcurrent {
		s.inflight++
		metrics.SchedulerInflight.Set(float64(s.inflight))
		s.mu.Unlock()
		return s.releaseOnce(), nil
	}

	w := &waiter{grant: make(chan struct{})}
	s.queues[priority] = append(s.queues[priority], w)
	metrics.SchedulerQueued.WithLabelValues(priority.String()).Inc()
	s.mu.Unlock()

	select {
	case <-w.grant:
		metrics.SchedulerQueued.WithLabelValues(priority.String()).Dec()
		return s.releaseOnce(), nil
	case <-ctx.Done():
	}

	// Cancellation raced with a grant: if the slot was already handed to
	// this waiter, it must be passed on.
	s.mu.Lock()
	if w.granted {
		s.mu.Unlock()
		metrics.SchedulerQueued.WithLabelValues(priority.String()).Dec()
		s.release()
		return nil, ctx.Err()
	}
	w.canceled = true
	s.mu.Unlock()
	metrics.SchedulerQueued.WithLabelValues(priority.String()).Dec()
	return nil, ctx.Err()
}

// releaseOnce wraps release so a sloppy caller cannot free a slot twice.
func (s *Scheduler) releaseOnce() func() {
	var once sync.Once
	return func() {
		once.Do(s.release)
	}
}

// release hands the slot to the next eligible waiter, highest priority
// first, FIFO within a tier. If no waiter is pending the in-flight count
// drops.
func (s *Scheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tier := range s.queues {
		for len(s.queues[tier]) > 0 {
			w := s.queues[tier][0]
			s.queues[tier] = s.queues[tier][1:]
			if w.canceled {
				continue
			}
			w.granted = true
			close(w.grant)
			return // slot transferred, inflight unchanged
		}
	}

	s.inflight--
	metrics.SchedulerInflight.Set(float64(s.inflight))
}

// Inflight returns the number of operations currently holding a slot.
func (s *Scheduler) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// QueueDepth returns the number of live waiters in the given tier.
func (s *Scheduler) QueueDepth(priority Priority) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.queues[priority] {
		if !w.canceled {
			n++
		}
	}
	return n
}
