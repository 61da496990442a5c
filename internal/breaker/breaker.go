// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package breaker guards the upstream content API with a circuit breaker.
//
// The breaker opens after FailureThreshold consecutive failures and stays
// open for Cooldown. Once the cooldown elapses, exactly one trial request
// is permitted (half-open); concurrent requests during the trial are
// rejected as if the circuit were still open. A successful trial closes
// the circuit and resets the failure count; a failed trial reopens it and
// restarts the cooldown.
//
// Built on sony/gobreaker's two-step API so the loader can gate an attempt
// before issuing it and record the outcome after, with retries in between.
package breaker

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/contentgate/internal/faults"
	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/metrics"
)

// Config holds circuit breaker settings.
type Config struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Default: 8.
	FailureThreshold uint32

	// Cooldown is how long the circuit stays open before permitting the
	// half-open trial. Default: 45s.
	Cooldown time.Duration
}

// DefaultConfig returns production defaults for the content API breaker.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 8,
		Cooldown:         45 * time.Second,
	}
}

// Snapshot is a point-in-time view of breaker state for the notifier and
// the status endpoint.
type Snapshot struct {
	State               gobreaker.State
	ConsecutiveFailures uint32
	OpenedAt            time.Time // zero unless currently open
}

// Breaker wraps a gobreaker two-step circuit breaker. One instance guards
// the whole upstream; it is constructed at the composition root and
// injected into the loader and notifier.
type Breaker struct {
	cb   *gobreaker.TwoStepCircuitBreaker[any]
	name string

	mu       sync.RWMutex
	openedAt time.Time
}

// New creates a circuit breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 8
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 45 * time.Second
	}

	b := &Breaker{name: cfg.Name}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(stateToFloat(gobreaker.StateClosed))

	b.cb = gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1, // exactly one trial request in half-open
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.onStateChange(name, from, to)
		},
	})

	return b
}

// errAttemptFailed marks a failed attempt for gobreaker, which records
// failure for any non-nil error under the default IsSuccessful.
var errAttemptFailed = errors.New("upstream attempt failed")

// Allow gates one network attempt. On success it returns a done callback
// that must be called exactly once with the attempt's outcome. When the
// circuit is open, or the single half-open trial slot is taken, it returns
// faults.ErrCircuitOpen.
func (b *Breaker) Allow() (done func(success bool), err error) {
	record, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, faults.ErrCircuitOpen
		}
		return nil, err
	}

	return func(success bool) {
		if success {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
			record(nil)
			return
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		record(errAttemptFailed)
	}, nil
}

// IsOpen reports whether the circuit currently refuses regular traffic.
// During half-open, non-trial requests are refused by Allow, but the state
// reported here is not open; callers that only need a fast pre-check should
// combine IsOpen with an Allow attempt.
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State returns the current gobreaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Snapshot returns the state, consecutive failure count, and the time the
// circuit opened (zero if not open).
func (b *Breaker) Snapshot() Snapshot {
	b.mu.RLock()
	openedAt := b.openedAt
	b.mu.RUnlock()

	return Snapshot{
		State:               b.cb.State(),
		ConsecutiveFailures: b.cb.Counts().ConsecutiveFailures,
		OpenedAt:            openedAt,
	}
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.mu.Lock()
	if to == gobreaker.StateOpen {
		b.openedAt = time.Now()
	} else {
		b.openedAt = time.Time{}
	}
	b.mu.Unlock()

	logging.Warn().
		Str("breaker", name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state transition")

	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
	metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
