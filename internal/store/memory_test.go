// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreBasicOperations(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	if err := s.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, found, err := s.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key1 to exist")
	}
	if string(value) != "value1" {
		t.Errorf("expected value1, got %s", value)
	}

	_, found, err = s.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found {
		t.Error("expected missing key to be absent")
	}
}

func TestMemoryStoreExpiration(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	if err := s.Set(ctx, "key1", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, found, _ := s.Get(ctx, "key1"); !found {
		t.Fatal("expected key1 immediately after set")
	}

	time.Sleep(80 * time.Millisecond)

	if _, found, _ := s.Get(ctx, "key1"); found {
		t.Error("expected key1 to be expired")
	}
}

func TestMemoryStoreExpiredReadKeepsConcurrentWrite(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	// A Get racing with a Set on an expired key must never evict the
	// freshly written value.
	for i := 0; i < 200; i++ {
		s.mu.Lock()
		s.entries["key1"] = memEntry{value: []byte("old"), expiresAt: time.Now().Add(-time.Second)}
		s.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = s.Get(ctx, "key1")
		}()
		go func() {
			defer wg.Done()
			_ = s.Set(ctx, "key1", []byte("fresh"), 0)
		}()
		wg.Wait()

		value, found, err := s.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if !found || string(value) != "fresh" {
			t.Fatalf("iteration %d: fresh write lost (found=%v, value=%s)", i, found, value)
		}
	}
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	_ = s.Set(ctx, "key1", []byte("old"), time.Minute)
	_ = s.Set(ctx, "key1", []byte("new"), time.Minute)

	value, found, _ := s.Get(ctx, "key1")
	if !found || string(value) != "new" {
		t.Errorf("expected new, got %s (found=%v)", value, found)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	_ = s.Set(ctx, "key1", []byte("v"), time.Minute)
	if err := s.Delete(ctx, "key1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, found, _ := s.Get(ctx, "key1"); found {
		t.Error("expected key1 to be deleted")
	}
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
