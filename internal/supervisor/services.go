// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/store"
)

// HTTPService runs an http.Server under suture supervision.
type HTTPService struct {
	name   string
	server *http.Server
}

// NewHTTPService wraps the server for supervision.
func NewHTTPService(name string, server *http.Server) *HTTPService {
	return &HTTPService{name: name, server: server}
}

// Serve runs the server until it fails or ctx is canceled.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	logging.Info().Str("addr", s.server.Addr).Msg("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http server shutdown failed")
	}
	<-errCh
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *HTTPService) String() string { return s.name }

// CacheGCService periodically runs badger value-log garbage collection on
// the durable cache tier.
type CacheGCService struct {
	store    *store.BadgerStore
	interval time.Duration
}

// NewCacheGCService creates the GC service.
func NewCacheGCService(s *store.BadgerStore, interval time.Duration) *CacheGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CacheGCService{store: s, interval: interval}
}

// Serve runs GC rounds until ctx is done.
func (s *CacheGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// A round that rewrote a log file may leave more to collect;
			// loop until badger reports nothing was rewritten.
			for {
				err := s.store.RunGC(0.5)
				if errors.Is(err, badger.ErrNoRewrite) {
					break
				}
				if err != nil {
					logging.Warn().Err(err).Msg("cache gc round failed")
					break
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String names the service in supervisor logs.
func (s *CacheGCService) String() string { return "cache-gc" }
