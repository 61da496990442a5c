// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package metrics provides Prometheus instrumentation for the resilience
// layer: circuit breaker state, cache efficiency per tier, scheduler
// occupancy, upstream attempt latency, and load outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contentgate_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_circuit_breaker_requests_total",
			Help: "Requests seen by the circuit breaker by outcome (success, failure, rejected)",
		},
		[]string{"name", "outcome"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_cache_hits_total",
			Help: "Cache hits by tier (memory, badger)",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contentgate_cache_misses_total",
			Help: "Lookups that missed both cache tiers",
		},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_cache_writes_total",
			Help: "Cache writes by tier",
		},
		[]string{"tier"},
	)

	CacheStaleServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_cache_stale_served_total",
			Help: "Stale entries served as fallback, by reason (offline, circuit, error)",
		},
		[]string{"reason"},
	)

	// Scheduler metrics
	SchedulerInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentgate_scheduler_inflight",
			Help: "Network operations currently holding a concurrency slot",
		},
	)

	SchedulerQueued = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contentgate_scheduler_queued",
			Help: "Requests waiting for a concurrency slot, by priority",
		},
		[]string{"priority"},
	)

	// Upstream metrics
	UpstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_upstream_attempts_total",
			Help: "Upstream fetch attempts by outcome (success, not_modified, network, timeout, client_error, server_error, parse_error)",
		},
		[]string{"outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentgate_upstream_duration_seconds",
			Help:    "Upstream fetch attempt duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"priority"},
	)

	Retries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contentgate_retries_total",
			Help: "Retry attempts scheduled by the retry policy",
		},
	)

	// Loader metrics
	LoadOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_load_outcomes_total",
			Help: "Final load outcomes (fresh, cached, stale, unavailable, error)",
		},
		[]string{"outcome", "content_type"},
	)

	BackgroundRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_background_refreshes_total",
			Help: "Stale-while-revalidate background refreshes by result (success, failure)",
		},
		[]string{"result"},
	)

	StaleDiscards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contentgate_stale_discards_total",
			Help: "Completed responses discarded because a newer response for the same key already applied",
		},
	)

	// Probe metrics
	NetworkOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentgate_network_online",
			Help: "Network monitor state (1=online, 0=offline)",
		},
	)

	HealthProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentgate_health_probes_total",
			Help: "Upstream /api/status probe results (ok, degraded, failed)",
		},
		[]string{"result"},
	)
)
