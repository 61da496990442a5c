// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package main is the entry point for the ContentGate daemon.
//
// ContentGate sits between a media-browsing UI and its remote content API
// and keeps the UI responsive when the network or the upstream misbehaves:
// a circuit breaker stops hammering a failing upstream, a two-tier
// stale-while-revalidate cache keeps content on screen, a bounded scheduler
// prevents request pileups, and transient failures are retried with
// exponential backoff.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered load (defaults, YAML file, environment)
//  2. Logging: global zerolog logger per config
//  3. Durable cache tier: BadgerDB at cache.durable_path (optional)
//  4. Resilience components: breaker, retry policy, scheduler, upstream client
//  5. Probes: network monitor, status notifier
//  6. HTTP server: the local API the UI talks to
//  7. Supervision: everything long-running under a suture tree
//
// # Configuration
//
// All settings can be given via CONTENTGATE_-prefixed environment
// variables or a contentgate.yaml file, e.g.:
//
//	export CONTENTGATE_UPSTREAM_BASE_URL=http://media-api:8080
//	export CONTENTGATE_SERVER_PORT=3859
//	./contentgate
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains,
// probes stop, and the badger store closes cleanly.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/contentgate/internal/api"
	"github.com/tomtom215/contentgate/internal/breaker"
	"github.com/tomtom215/contentgate/internal/cache"
	"github.com/tomtom215/contentgate/internal/config"
	"github.com/tomtom215/contentgate/internal/loader"
	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/netmon"
	"github.com/tomtom215/contentgate/internal/notifier"
	"github.com/tomtom215/contentgate/internal/retry"
	"github.com/tomtom215/contentgate/internal/scheduler"
	"github.com/tomtom215/contentgate/internal/store"
	"github.com/tomtom215/contentgate/internal/supervisor"
	"github.com/tomtom215/contentgate/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("contentgate failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("upstream", cfg.Upstream.BaseURL).
		Int("port", cfg.Server.Port).
		Msg("contentgate starting")

	// Durable cache tier. Optional: without it the cache is memory-only
	// and nothing survives restarts.
	var durable *store.BadgerStore
	if cfg.Cache.DurablePath != "" {
		durable, err = store.OpenBadgerStore(cfg.Cache.DurablePath, false)
		if err != nil {
			return fmt.Errorf("open durable cache: %w", err)
		}
		defer func() {
			if cerr := durable.Close(); cerr != nil {
				logging.Error().Err(cerr).Msg("durable cache close failed")
			}
		}()
	}

	mem := store.NewMemoryStore()
	defer func() { _ = mem.Close() }()

	var durableKV store.KeyValueStore
	if durable != nil {
		durableKV = durable
	}
	contentCache := cache.New(mem, durableKV, cache.Config{
		FreshFor:     cfg.Cache.FreshFor,
		RefreshAfter: cfg.Cache.RefreshAfter,
		StaleFor:     cfg.Cache.StaleFor,
		DurableTypes: cfg.Cache.DurableTypes,
	})

	cb := breaker.New(breaker.Config{
		Name:             "upstream",
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	})

	policy := retry.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}

	sched := scheduler.New(cfg.Scheduler.MaxConcurrent)

	client := upstream.New(upstream.Config{
		BaseURL:       cfg.Upstream.BaseURL,
		TimeoutHigh:   cfg.Upstream.TimeoutHigh,
		TimeoutNormal: cfg.Upstream.TimeoutNormal,
		TimeoutLow:    cfg.Upstream.TimeoutLow,
		RatePerSecond: cfg.Upstream.RatePerSecond,
		RateBurst:     cfg.Upstream.RateBurst,
		UserAgent:     cfg.Upstream.UserAgent,
	})

	monitor := netmon.New(netmon.Config{
		ProbeURL: cfg.Upstream.BaseURL,
		Interval: cfg.Probe.NetworkInterval,
		Timeout:  cfg.Probe.Timeout,
	})

	contentLoader := loader.New(contentCache, cb, policy, sched, client, monitor, nil)

	statusNotifier := notifier.New(notifier.Config{
		Interval: cfg.Probe.StatusInterval,
	}, cb, monitor, client)

	router := api.NewRouter(api.Config{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	}, contentLoader, statusNotifier)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddProbeService(monitor)
	tree.AddProbeService(statusNotifier)
	if durable != nil {
		tree.AddProbeService(supervisor.NewCacheGCService(durable, cfg.Cache.GCInterval))
	}
	tree.AddAPIService(supervisor.NewHTTPService("http-server", httpServer))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	logging.Info().Msg("contentgate stopped")
	return nil
}
