// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package config defines and loads ContentGate configuration with layered
// sources: built-in defaults, optional YAML file, environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the resilience layer.
type Config struct {
	Upstream  UpstreamConfig  `koanf:"upstream" validate:"required"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Retry     RetryConfig     `koanf:"retry"`
	Cache     CacheConfig     `koanf:"cache"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Probe     ProbeConfig     `koanf:"probe"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// UpstreamConfig describes the remote content API.
type UpstreamConfig struct {
	// BaseURL is the content API root, e.g. http://api.example.com:8080.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// Per-priority attempt timeouts. High-priority content (above the fold)
	// fails fast; low-priority content may wait.
	TimeoutHigh   time.Duration `koanf:"timeout_high" validate:"gt=0"`
	TimeoutNormal time.Duration `koanf:"timeout_normal" validate:"gt=0"`
	TimeoutLow    time.Duration `koanf:"timeout_low" validate:"gt=0"`

	// RatePerSecond smooths outbound bursts; 0 disables the limiter.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`
	RateBurst     int     `koanf:"rate_burst" validate:"gte=0"`

	UserAgent string `koanf:"user_agent"`
}

// BreakerConfig configures the circuit breaker guarding the upstream.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold uint32 `koanf:"failure_threshold" validate:"gt=0"`

	// Cooldown is how long the circuit stays open before a single
	// half-open trial is permitted.
	Cooldown time.Duration `koanf:"cooldown" validate:"gt=0"`
}

// RetryConfig configures per-intent retry behavior, independent of the
// breaker's longer-horizon failure count.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `koanf:"max_retries" validate:"gte=0"`

	// BaseDelay seeds the exponential backoff; jitter in [0, BaseDelay)
	// is added to every delay.
	BaseDelay time.Duration `koanf:"base_delay" validate:"gt=0"`

	// MaxDelay caps a single backoff wait.
	MaxDelay time.Duration `koanf:"max_delay" validate:"gt=0"`
}

// CacheConfig configures the two-tier stale-while-revalidate cache.
//
// The three windows form one policy: entries younger than FreshFor are
// served without any network traffic; entries older than RefreshAfter
// trigger a non-blocking background revalidation when served; any entry
// younger than StaleFor remains servable as a stale fallback when the
// network path is unavailable.
type CacheConfig struct {
	FreshFor     time.Duration `koanf:"fresh_for" validate:"gt=0"`
	RefreshAfter time.Duration `koanf:"refresh_after" validate:"gt=0"`
	StaleFor     time.Duration `koanf:"stale_for" validate:"gt=0"`

	// DurablePath is the badger directory for the durable tier.
	// Empty disables the durable tier (memory only).
	DurablePath string `koanf:"durable_path"`

	// DurableTypes lists content types written through to the durable
	// tier. Everything is cached in memory; only high-value types
	// survive restarts.
	DurableTypes []string `koanf:"durable_types"`

	// GCInterval is how often badger value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval" validate:"gt=0"`
}

// SchedulerConfig bounds concurrent in-flight upstream operations.
type SchedulerConfig struct {
	MaxConcurrent int `koanf:"max_concurrent" validate:"gt=0"`
}

// ProbeConfig configures connectivity and upstream health probing.
type ProbeConfig struct {
	// NetworkInterval is how often the network monitor checks
	// connectivity to the upstream host.
	NetworkInterval time.Duration `koanf:"network_interval" validate:"gt=0"`

	// StatusInterval is how often the status notifier polls the
	// upstream /api/status endpoint.
	StatusInterval time.Duration `koanf:"status_interval" validate:"gt=0"`

	// Timeout bounds a single probe request.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// ServerConfig configures the local HTTP surface consumed by the UI.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. These are
// layered first, then overridden by file and environment.
func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:       "",
			TimeoutHigh:   5 * time.Second,
			TimeoutNormal: 15 * time.Second,
			TimeoutLow:    30 * time.Second,
			RatePerSecond: 50,
			RateBurst:     100,
			UserAgent:     "ContentGate/1.0",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 8,
			Cooldown:         45 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   8 * time.Second,
		},
		Cache: CacheConfig{
			FreshFor:     5 * time.Minute,
			RefreshAfter: 2 * time.Minute,
			StaleFor:     24 * time.Hour,
			DurablePath:  "/data/contentgate/cache",
			DurableTypes: []string{"home", "detail"},
			GCInterval:   10 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent: 8,
		},
		Probe: ProbeConfig{
			NetworkInterval: 15 * time.Second,
			StatusInterval:  30 * time.Second,
			Timeout:         5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            3859,
			Timeout:         60 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks structural constraints plus the cross-field invariants
// the struct tags cannot express.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Cache.RefreshAfter > c.Cache.FreshFor {
		return fmt.Errorf("config validation: cache.refresh_after (%s) must not exceed cache.fresh_for (%s)",
			c.Cache.RefreshAfter, c.Cache.FreshFor)
	}
	if c.Cache.StaleFor < c.Cache.FreshFor {
		return fmt.Errorf("config validation: cache.stale_for (%s) must not be shorter than cache.fresh_for (%s)",
			c.Cache.StaleFor, c.Cache.FreshFor)
	}
	if c.Upstream.TimeoutHigh > c.Upstream.TimeoutNormal || c.Upstream.TimeoutNormal > c.Upstream.TimeoutLow {
		return fmt.Errorf("config validation: upstream timeouts must be ordered high <= normal <= low")
	}
	return nil
}
