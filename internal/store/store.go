// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package store provides the key-value storage backing the content cache.
//
// Two implementations exist: MemoryStore, an ephemeral in-process tier whose
// lifecycle is bound to the daemon, and BadgerStore, a durable on-device
// tier that survives restarts. The cache layer depends only on the
// KeyValueStore interface and treats the tiers uniformly.
package store

import (
	"context"
	"time"
)

// KeyValueStore is the capability the content cache requires of a tier.
// Writes are last-write-wins; implementations must tolerate concurrent
// overwrites of the same key.
type KeyValueStore interface {
	// Get returns the value for key, or found=false if absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
