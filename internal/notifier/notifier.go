// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package notifier drives the UI health banner. It merges three signals
// into one Status: the local circuit breaker, the network monitor, and the
// upstream's own /api/status self-report, polled on a fixed cadence.
package notifier

import (
	"context"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/contentgate/internal/breaker"
	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/metrics"
	"github.com/tomtom215/contentgate/internal/netmon"
	"github.com/tomtom215/contentgate/internal/upstream"
)

// Level is the banner severity.
type Level string

const (
	LevelOK       Level = "ok"
	LevelDegraded Level = "degraded" // remote circuit open, local still closed
	LevelOffline  Level = "offline"
	LevelCircuit  Level = "circuit" // local circuit open
)

// Status is the merged health view served to the UI.
type Status struct {
	Level               Level     `json:"level"`
	Online              bool      `json:"online"`
	CircuitOpen         bool      `json:"circuit_breaker_open"`
	RemoteCircuitOpen   bool      `json:"remote_circuit_breaker_open"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	CheckedAt           time.Time `json:"checked_at"`
	Message             string    `json:"message,omitempty"`
}

// Config holds notifier settings.
type Config struct {
	// Interval between upstream status polls. Default: 30s.
	Interval time.Duration
}

// Notifier polls upstream health and exposes the merged status. Implements
// suture.Service.
type Notifier struct {
	cfg     Config
	breaker *breaker.Breaker
	monitor *netmon.Monitor
	client  *upstream.Client

	mu      sync.RWMutex
	current Status
	subs    []chan Status
}

// New creates a status notifier.
func New(cfg Config, b *breaker.Breaker, m *netmon.Monitor, c *upstream.Client) *Notifier {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	n := &Notifier{
		cfg:     cfg,
		breaker: b,
		monitor: m,
		client:  c,
	}
	n.current = n.merge(false)
	return n
}

// Current returns the latest merged status. Local signals (breaker,
// connectivity) are re-read on every call so the view never lags them; only
// the remote self-report is as old as the last poll.
func (n *Notifier) Current() Status {
	n.mu.RLock()
	remote := n.current.RemoteCircuitOpen
	n.mu.RUnlock()
	return n.merge(remote)
}

// Subscribe returns a channel receiving status updates after each poll.
// Slow readers miss intermediate updates but converge via Current.
func (n *Notifier) Subscribe() <-chan Status {
	ch := make(chan Status, 4)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

// Serve polls the upstream status endpoint until ctx is done. Implements
// suture.Service.
func (n *Notifier) Serve(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.Interval)
	defer ticker.Stop()

	n.poll(ctx)
	for {
		select {
		case <-ticker.C:
			n.poll(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// poll fetches the remote self-report and publishes the merged status.
// A failed poll keeps the previous remote view; local signals still update.
func (n *Notifier) poll(ctx context.Context) {
	remote := false
	report, err := n.client.Status(ctx)
	switch {
	case err != nil:
		metrics.HealthProbes.WithLabelValues("failed").Inc()
		logging.Debug().Err(err).Msg("upstream status poll failed")
		n.mu.RLock()
		remote = n.current.RemoteCircuitOpen
		n.mu.RUnlock()
	case report.CircuitBreakerOpen:
		metrics.HealthProbes.WithLabelValues("degraded").Inc()
		remote = true
	default:
		metrics.HealthProbes.WithLabelValues("ok").Inc()
	}

	status := n.merge(remote)

	n.mu.Lock()
	changed := status.Level != n.current.Level
	n.current = status
	subs := make([]chan Status, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	if changed {
		logging.Info().
			Str("level", string(status.Level)).
			Bool("online", status.Online).
			Bool("circuit_open", status.CircuitOpen).
			Msg("health status changed")
	}

	for _, ch := range subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// merge folds the local breaker, connectivity, and the remote self-report
// into a single banner status. Local circuit open wins over offline: it
// means the upstream is reachable but failing.
func (n *Notifier) merge(remoteOpen bool) Status {
	snap := n.breaker.Snapshot()
	online := n.monitor.IsOnline()
	localOpen := snap.State == gobreaker.StateOpen

	s := Status{
		Online:              online,
		CircuitOpen:         localOpen,
		RemoteCircuitOpen:   remoteOpen,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		CheckedAt:           time.Now(),
	}

	switch {
	case localOpen:
		s.Level = LevelCircuit
		s.Message = "content service unavailable, retrying shortly"
	case !online:
		s.Level = LevelOffline
		s.Message = "you appear to be offline"
	case remoteOpen:
		s.Level = LevelDegraded
		s.Message = "content service is recovering, some items may be stale"
	default:
		s.Level = LevelOK
	}
	return s
}

// String names the service in supervisor logs.
func (n *Notifier) String() string { return "status-notifier" }
