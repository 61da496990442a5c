// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package cache implements the two-tier stale-while-revalidate content
// cache.
//
// Reads check the ephemeral in-memory tier first, then the durable
// on-device tier; a durable hit is promoted into memory. Writes go through
// both tiers, with the durable tier restricted to an allowlist of
// high-value content types (home and detail pages by default).
//
// Freshness policy (one consistent triple):
//   - FreshFor: entries younger than this are served with no network I/O.
//   - RefreshAfter: entries older than this trigger a non-blocking
//     background revalidation when served.
//   - StaleFor: entries younger than this remain servable as a stale
//     fallback when the network path is unavailable (stale-if-error).
package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/metrics"
	"github.com/tomtom215/contentgate/internal/payload"
	"github.com/tomtom215/contentgate/internal/store"
)

// keyPrefix namespaces cache keys in both tiers.
const keyPrefix = "content_"

// Tier identifies which cache tier served a read.
type Tier string

const (
	TierMemory Tier = "memory"
	TierBadger Tier = "badger"
)

// Entry is a cached content payload with staleness metadata.
type Entry struct {
	Key          string
	ContentType  string
	URL          string
	Payload      payload.Payload
	FetchedAt    time.Time
	ETag         string
	LastModified string
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age() time.Duration {
	return time.Since(e.FetchedAt)
}

// persisted is the on-disk JSON shape of an entry. Field names match the
// format other clients on the device read and write.
type persisted struct {
	ContentType  string          `json:"content_type"`
	URL          string          `json:"url"`
	Content      json.RawMessage `json:"content,omitempty"`
	HTML         string          `json:"html,omitempty"`
	Timestamp    int64           `json:"timestamp"` // unix milliseconds
	ETag         string          `json:"etag,omitempty"`
	LastModified string          `json:"lastModified,omitempty"`
}

// Config holds the freshness policy and durable-tier allowlist.
type Config struct {
	FreshFor     time.Duration
	RefreshAfter time.Duration
	StaleFor     time.Duration
	DurableTypes []string
}

// ContentCache coordinates the two tiers.
type ContentCache struct {
	mem     store.KeyValueStore
	durable store.KeyValueStore // may be nil: memory-only mode
	cfg     Config
	allowed map[string]struct{}
}

// New creates a ContentCache. durable may be nil to disable the durable
// tier entirely.
func New(mem, durable store.KeyValueStore, cfg Config) *ContentCache {
	allowed := make(map[string]struct{}, len(cfg.DurableTypes))
	for _, t := range cfg.DurableTypes {
		allowed[t] = struct{}{}
	}
	return &ContentCache{mem: mem, durable: durable, cfg: cfg, allowed: allowed}
}

// Key builds the deterministic cache key for a content type and source URL.
// The same format is used for the persisted durable entries.
func Key(contentType, url string) string {
	return keyPrefix + contentType + "-" + url
}

// Get returns the cached entry for key, checking memory then the durable
// tier. Expired entries (older than StaleFor) are not returned. A durable
// hit is promoted into the memory tier.
func (c *ContentCache) Get(ctx context.Context, key string) (*Entry, Tier, bool) {
	if raw, found, err := c.mem.Get(ctx, key); err == nil && found {
		if entry := c.decode(key, raw); entry != nil {
			metrics.CacheHits.WithLabelValues(string(TierMemory)).Inc()
			return entry, TierMemory, true
		}
	}

	if c.durable != nil {
		raw, found, err := c.durable.Get(ctx, key)
		if err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("durable cache read failed")
		} else if found {
			if entry := c.decode(key, raw); entry != nil {
				metrics.CacheHits.WithLabelValues(string(TierBadger)).Inc()
				c.promote(ctx, key, raw, entry)
				return entry, TierBadger, true
			}
		}
	}

	metrics.CacheMisses.Inc()
	return nil, "", false
}

// Set writes the entry through to both tiers. The memory tier accepts
// every content type; the durable tier only allowlisted ones. Writes are
// last-write-wins: a newer fetch always replaces an older entry.
func (c *ContentCache) Set(ctx context.Context, entry *Entry) error {
	raw, err := encode(entry)
	if err != nil {
		return err
	}

	if err := c.mem.Set(ctx, entry.Key, raw, c.cfg.StaleFor); err != nil {
		return err
	}
	metrics.CacheWrites.WithLabelValues(string(TierMemory)).Inc()

	if c.durable != nil && c.durableAllowed(entry.ContentType) {
		if err := c.durable.Set(ctx, entry.Key, raw, c.cfg.StaleFor); err != nil {
			// The memory tier already holds the entry; a durable write
			// failure degrades persistence, not correctness.
			logging.Warn().Err(err).Str("key", entry.Key).Msg("durable cache write failed")
		} else {
			metrics.CacheWrites.WithLabelValues(string(TierBadger)).Inc()
		}
	}
	return nil
}

// Delete removes the key from both tiers.
func (c *ContentCache) Delete(ctx context.Context, key string) {
	if err := c.mem.Delete(ctx, key); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("memory cache delete failed")
	}
	if c.durable != nil {
		if err := c.durable.Delete(ctx, key); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("durable cache delete failed")
		}
	}
}

// IsFresh reports whether the entry is recent enough to skip the network
// round trip entirely.
func (c *ContentCache) IsFresh(entry *Entry) bool {
	return entry.Age() < c.cfg.FreshFor
}

// ShouldBackgroundRefresh reports whether a served entry is old enough to
// warrant a non-blocking revalidation fetch.
func (c *ContentCache) ShouldBackgroundRefresh(entry *Entry) bool {
	return entry.Age() >= c.cfg.RefreshAfter
}

func (c *ContentCache) durableAllowed(contentType string) bool {
	_, ok := c.allowed[contentType]
	return ok
}

// promote copies a durable hit into the memory tier for faster rereads,
// preserving the remaining lifetime.
func (c *ContentCache) promote(ctx context.Context, key string, raw []byte, entry *Entry) {
	remaining := c.cfg.StaleFor - entry.Age()
	if remaining <= 0 {
		return
	}
	if err := c.mem.Set(ctx, key, raw, remaining); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("cache promote failed")
	}
}

func encode(entry *Entry) ([]byte, error) {
	p := persisted{
		ContentType:  entry.ContentType,
		URL:          entry.URL,
		Content:      entry.Payload.Data,
		HTML:         entry.Payload.HTML,
		Timestamp:    entry.FetchedAt.UnixMilli(),
		ETag:         entry.ETag,
		LastModified: entry.LastModified,
	}
	return json.Marshal(p)
}

// decode parses a stored entry, returning nil for undecodable or expired
// values. Corrupt entries are tolerated, not fatal: another writer on the
// device may hold a different schema version.
func (c *ContentCache) decode(key string, raw []byte) *Entry {
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return nil
	}

	fetchedAt := time.UnixMilli(p.Timestamp)
	if time.Since(fetchedAt) > c.cfg.StaleFor {
		return nil
	}

	kind := payload.KindStructured
	if len(p.Content) == 0 && p.HTML != "" {
		kind = payload.KindHTML
	}

	return &Entry{
		Key:          key,
		ContentType:  p.ContentType,
		URL:          p.URL,
		Payload:      payload.Payload{Kind: kind, HTML: p.HTML, Data: p.Content},
		FetchedAt:    fetchedAt,
		ETag:         p.ETag,
		LastModified: p.LastModified,
	}
}
