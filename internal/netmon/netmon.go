// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package netmon tracks whether the device currently has connectivity to
// the upstream content host. It is the leaf dependency of the resilience
// layer: the loader consults it before attempting the network path, and
// the notifier surfaces transitions to the UI.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/metrics"
)

// Config holds monitor settings.
type Config struct {
	// ProbeURL is the endpoint probed for connectivity, typically the
	// upstream base URL.
	ProbeURL string

	// Interval between probes.
	Interval time.Duration

	// Timeout bounds a single probe.
	Timeout time.Duration
}

// Monitor tracks online/offline state. It starts optimistic (online) and
// flips on probe evidence or explicit SetOnline calls.
type Monitor struct {
	cfg    Config
	client *http.Client
	online atomic.Bool

	mu   sync.Mutex
	subs []chan bool
}

// New creates a network monitor. It reports online until a probe says
// otherwise.
func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	m := &Monitor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	m.online.Store(true)
	metrics.NetworkOnline.Set(1)
	return m
}

// IsOnline reports the last known connectivity state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// SetOnline overrides the connectivity state, e.g. from an external signal.
// Transitions notify subscribers.
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}

	if online {
		metrics.NetworkOnline.Set(1)
		logging.Info().Msg("network back online")
	} else {
		metrics.NetworkOnline.Set(0)
		logging.Warn().Msg("network offline")
	}

	m.mu.Lock()
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- online:
		default: // slow subscriber, drop the transition
		}
	}
}

// Subscribe returns a channel receiving online/offline transitions.
// The channel is buffered; a slow reader misses intermediate flips but
// always converges via IsOnline.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Serve probes connectivity periodically until ctx is done. Implements
// suture.Service.
func (m *Monitor) Serve(ctx context.Context) error {
	if m.cfg.ProbeURL == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ticker.C:
			m.probe(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// probe issues one HEAD request. Any response, including an error status,
// proves connectivity; only transport failures mean offline.
func (m *Monitor) probe(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		logging.Error().Err(err).Msg("network probe request build failed")
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.SetOnline(false)
		return
	}
	_ = resp.Body.Close()
	m.SetOnline(true)
}

// String names the service in supervisor logs.
func (m *Monitor) String() string { return "network-monitor" }
