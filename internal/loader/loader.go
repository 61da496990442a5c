// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package loader orchestrates the resilience layer to satisfy content load
// intents.
//
// For each intent it consults the circuit breaker and network monitor,
// serves fresh cache hits without network I/O, issues attempts through the
// bounded scheduler with per-intent retry, falls back to stale cache when
// the network path is unavailable, and guarantees the caller always gets a
// renderable result: fresh content, stale content with its age, or an
// explicit retryable error state. Nothing here is fatal.
//
// Responses for the same cache key apply in logical-sequence order: a
// completed fetch is discarded if a strictly newer fetch for the key has
// already applied, so background refreshes and slow retries never
// overwrite newer content.
package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/contentgate/internal/breaker"
	"github.com/tomtom215/contentgate/internal/cache"
	"github.com/tomtom215/contentgate/internal/faults"
	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/metrics"
	"github.com/tomtom215/contentgate/internal/netmon"
	"github.com/tomtom215/contentgate/internal/payload"
	"github.com/tomtom215/contentgate/internal/retry"
	"github.com/tomtom215/contentgate/internal/scheduler"
	"github.com/tomtom215/contentgate/internal/upstream"
)

// Source says where a result's payload came from.
type Source string

const (
	SourceFresh Source = "fresh" // straight from the network
	SourceCache Source = "cache" // fresh-enough cached entry
	SourceStale Source = "stale" // expired entry served as fallback
	SourceNone  Source = "none"  // no payload available
)

// StaleReason explains why a stale entry was served.
type StaleReason string

const (
	StaleOffline StaleReason = "offline"
	StaleCircuit StaleReason = "circuit"
	StaleError   StaleReason = "error"
)

// Intent is one "load content for this region" request from the UI.
type Intent struct {
	URL         string
	ContentType string
	Priority    scheduler.Priority
}

// Key returns the cache key for the intent.
func (i Intent) Key() string {
	return cache.Key(i.ContentType, i.URL)
}

// Result is always renderable. Exactly one of these shapes holds:
// a usable Payload (possibly stale, with Age and StaleReason set), or
// Unavailable with a retryable error state.
type Result struct {
	Payload     payload.Payload
	Source      Source
	Stale       bool
	StaleReason StaleReason
	Age         time.Duration
	Unavailable bool
	Retryable   bool
	Err         error
}

// RenderHook observes every applied result, including background-refresh
// completions, under the same per-key ordering guard as cache writes.
type RenderHook func(key string, res Result)

// backgroundTimeout bounds a detached stale-while-revalidate fetch.
const backgroundTimeout = 45 * time.Second

// Loader coordinates cache, breaker, retry policy, scheduler, and the
// upstream client. One instance serves all intents.
type Loader struct {
	cache   *cache.ContentCache
	breaker *breaker.Breaker
	policy  retry.Policy
	sched   *scheduler.Scheduler
	client  *upstream.Client
	monitor *netmon.Monitor
	hook    RenderHook

	group singleflight.Group

	mu      sync.Mutex
	seq     uint64            // logical fetch sequence, global
	applied map[string]uint64 // per key: highest applied fetch seq
}

// New creates a Loader. hook may be nil.
func New(c *cache.ContentCache, b *breaker.Breaker, policy retry.Policy,
	sched *scheduler.Scheduler, client *upstream.Client, monitor *netmon.Monitor,
	hook RenderHook) *Loader {
	return &Loader{
		cache:   c,
		breaker: b,
		policy:  policy,
		sched:   sched,
		client:  client,
		monitor: monitor,
		hook:    hook,
		applied: make(map[string]uint64),
	}
}

// Load satisfies an intent, serving fresh cache when possible.
func (l *Loader) Load(ctx context.Context, intent Intent) Result {
	return l.load(ctx, intent, false)
}

// LoadRefresh bypasses the freshness check and forces a revalidation,
// used by the UI's manual retry / pull-to-refresh affordances.
func (l *Loader) LoadRefresh(ctx context.Context, intent Intent) Result {
	return l.load(ctx, intent, true)
}

func (l *Loader) load(ctx context.Context, intent Intent, force bool) Result {
	key := intent.Key()

	// Breaker open with no trial available: never touch the network.
	if l.breaker.IsOpen() {
		return l.fallback(ctx, intent, key, StaleCircuit, faults.ErrCircuitOpen)
	}

	// Offline: same fallback, tagged differently for the UI.
	if !l.monitor.IsOnline() {
		return l.fallback(ctx, intent, key, StaleOffline, faults.ErrOffline)
	}

	if !force {
		if entry, _, ok := l.cache.Get(ctx, key); ok && l.cache.IsFresh(entry) {
			if l.cache.ShouldBackgroundRefresh(entry) {
				l.backgroundRefresh(intent)
			}
			l.outcome(intent, "cached")
			return l.render(key, Result{
				Payload: entry.Payload,
				Source:  SourceCache,
				Age:     entry.Age(),
			})
		}
	}

	entry, err := l.fetch(ctx, intent, force)
	if err != nil {
		if errors.Is(err, faults.ErrCircuitOpen) {
			// Lost the half-open trial slot to a concurrent request.
			return l.fallback(ctx, intent, key, StaleCircuit, err)
		}
		return l.fallback(ctx, intent, key, StaleError, err)
	}

	l.outcome(intent, "fresh")
	return l.render(key, Result{
		Payload: entry.Payload,
		Source:  SourceFresh,
	})
}

// fetch runs the full network path for an intent: singleflight collapse,
// scheduler slot per attempt, breaker gating, retry policy. On success the
// cache has been updated (subject to the ordering guard) and the resulting
// entry is returned.
func (l *Loader) fetch(ctx context.Context, intent Intent, force bool) (*cache.Entry, error) {
	key := intent.Key()

	v, err, _ := l.group.Do(key, func() (any, error) {
		seq := l.claimSeq()
		entry, err := l.fetchWithRetry(ctx, intent, force)
		if err != nil {
			return nil, err
		}
		if !l.apply(ctx, key, seq, entry) {
			// A newer fetch already applied; serve its entry instead.
			if newer, _, ok := l.cache.Get(ctx, key); ok {
				return newer, nil
			}
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cache.Entry), nil
}

// fetchWithRetry issues attempts until success, a non-retryable failure,
// or the retry budget is exhausted. Each attempt acquires its own
// scheduler slot so backoff waits never hold concurrency.
func (l *Loader) fetchWithRetry(ctx context.Context, intent Intent, force bool) (*cache.Entry, error) {
	key := intent.Key()

	req := upstream.Request{
		URL:          intent.URL,
		ContentType:  intent.ContentType,
		Priority:     intent.Priority,
		ForceRefresh: force,
	}

	// Conditional headers from whatever we already hold.
	prior, _, hadPrior := l.cache.Get(ctx, key)
	if hadPrior && !force {
		req.ETag = prior.ETag
		req.LastModified = prior.LastModified
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		entry, err := l.attempt(ctx, intent, req, prior)
		if err == nil {
			return entry, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, faults.ErrCircuitOpen) {
			return nil, err
		}

		lastErr = err
		if !l.policy.ShouldRetry(err, attempt) {
			return nil, lastErr
		}
		logging.Warn().Err(err).
			Str("url", intent.URL).
			Int("attempt", attempt+1).
			Int("max_retries", l.policy.MaxRetries).
			Msg("retrying content fetch")
		if werr := l.policy.Wait(ctx, attempt); werr != nil {
			return nil, lastErr
		}
	}
}

// attempt performs a single gated network attempt.
func (l *Loader) attempt(ctx context.Context, intent Intent, req upstream.Request, prior *cache.Entry) (*cache.Entry, error) {
	release, err := l.sched.Acquire(ctx, intent.Priority)
	if err != nil {
		return nil, err
	}
	defer release()

	done, err := l.breaker.Allow()
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Fetch(ctx, req)
	if err != nil {
		// Cancellation and timeouts both count as failures here: an
		// expired attempt proves nothing good about the upstream.
		done(!faults.CountsAgainstBreaker(err))
		return nil, err
	}
	done(true)

	if resp.NotModified && prior != nil {
		refreshed := *prior
		refreshed.ETag = firstNonEmpty(resp.ETag, prior.ETag)
		refreshed.LastModified = firstNonEmpty(resp.LastModified, prior.LastModified)
		return &refreshed, nil
	}

	return &cache.Entry{
		Key:          intent.Key(),
		ContentType:  intent.ContentType,
		URL:          intent.URL,
		Payload:      resp.Payload,
		FetchedAt:    time.Now(),
		ETag:         resp.ETag,
		LastModified: resp.LastModified,
	}, nil
}

// claimSeq allocates the next logical fetch sequence number.
func (l *Loader) claimSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	return l.seq
}

// apply writes the entry through the single ordered boundary. It returns
// false, and writes nothing, when a strictly newer fetch for the key has
// already applied.
func (l *Loader) apply(ctx context.Context, key string, seq uint64, entry *cache.Entry) bool {
	l.mu.Lock()
	if l.applied[key] > seq {
		l.mu.Unlock()
		metrics.StaleDiscards.Inc()
		logging.Debug().Str("key", key).Msg("discarding superseded response")
		return false
	}
	l.applied[key] = seq
	l.mu.Unlock()

	entry.FetchedAt = time.Now()
	if err := l.cache.Set(ctx, entry); err != nil {
		logging.Error().Err(err).Str("key", key).Msg("cache write failed")
	}
	return true
}

// backgroundRefresh revalidates a served-but-aging entry without blocking
// the caller. Failures leave the displayed content as-is.
func (l *Loader) backgroundRefresh(intent Intent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		entry, err := l.fetch(ctx, intent, false)
		if err != nil {
			metrics.BackgroundRefreshes.WithLabelValues("failure").Inc()
			logging.Debug().Err(err).Str("url", intent.URL).Msg("background refresh failed")
			return
		}
		metrics.BackgroundRefreshes.WithLabelValues("success").Inc()
		l.render(intent.Key(), Result{
			Payload: entry.Payload,
			Source:  SourceFresh,
		})
	}()
}

// fallback serves a stale cache entry when the network path is closed
// (offline, breaker open) or failed; with nothing cached it returns the
// explicit unavailable/error state with a manual retry affordance.
func (l *Loader) fallback(ctx context.Context, intent Intent, key string, reason StaleReason, cause error) Result {
	if entry, _, ok := l.cache.Get(ctx, key); ok {
		metrics.CacheStaleServed.WithLabelValues(string(reason)).Inc()
		l.outcome(intent, "stale")
		return l.render(key, Result{
			Payload:     entry.Payload,
			Source:      SourceStale,
			Stale:       true,
			StaleReason: reason,
			Age:         entry.Age(),
			Err:         cause,
		})
	}

	l.outcome(intent, "unavailable")
	return l.render(key, Result{
		Source:      SourceNone,
		Unavailable: true,
		Retryable:   true,
		Err:         cause,
	})
}

// render pushes a result through the hook boundary and returns it.
func (l *Loader) render(key string, res Result) Result {
	if l.hook != nil {
		l.hook(key, res)
	}
	return res
}

func (l *Loader) outcome(intent Intent, outcome string) {
	metrics.LoadOutcomes.WithLabelValues(outcome, intent.ContentType).Inc()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
