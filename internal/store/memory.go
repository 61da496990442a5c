// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package store

import (
	"context"
	"sync"
	"time"
)

// memEntry is a stored value with its expiry.
type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a thread-safe in-memory key-value store with per-entry TTL.
// It is the ephemeral cache tier: contents are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry

	stats Stats
	done  chan struct{}
	once  sync.Once
}

// Stats tracks store usage counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Keys      int64
}

// cleanupInterval is how often expired entries are swept.
const cleanupInterval = 5 * time.Minute

// NewMemoryStore creates an in-memory store with a background sweep of
// expired entries. Close stops the sweeper.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memEntry),
		done:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Get returns the value for key if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		s.recordMiss()
		return nil, false, nil
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		// Re-check under the write lock: a concurrent Set may have
		// replaced the expired entry with a live one.
		s.mu.Lock()
		current, exists := s.entries[key]
		expired := exists && !current.expiresAt.IsZero() && time.Now().After(current.expiresAt)
		if expired {
			delete(s.entries, key)
			s.stats.Keys = int64(len(s.entries))
		}
		s.mu.Unlock()

		if expired {
			s.recordMiss()
			s.recordEviction()
			return nil, false, nil
		}
		if !exists {
			s.recordMiss()
			return nil, false, nil
		}
		s.recordHit()
		return current.value, true, nil
	}

	s.recordHit()
	return entry.value, true, nil
}

// Set stores value under key, overwriting any previous entry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = memEntry{value: value, expiresAt: expiresAt}
	s.stats.Keys = int64(len(s.entries))
	s.mu.Unlock()
	return nil
}

// Delete removes key if present.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.stats.Keys = int64(len(s.entries))
	s.mu.Unlock()
	return nil
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// GetStats returns a snapshot of usage counters.
func (s *MemoryStore) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, key)
			s.stats.Evictions++
		}
	}
	s.stats.Keys = int64(len(s.entries))
}

func (s *MemoryStore) recordHit() {
	s.mu.Lock()
	s.stats.Hits++
	s.mu.Unlock()
}

func (s *MemoryStore) recordMiss() {
	s.mu.Lock()
	s.stats.Misses++
	s.mu.Unlock()
}

func (s *MemoryStore) recordEviction() {
	s.mu.Lock()
	s.stats.Evictions++
	s.mu.Unlock()
}

var _ KeyValueStore = (*MemoryStore)(nil)
