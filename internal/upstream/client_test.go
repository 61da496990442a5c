// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/contentgate/internal/faults"
	"github.com/tomtom215/contentgate/internal/payload"
	"github.com/tomtom215/contentgate/internal/scheduler"
)

func newTestClient(baseURL string) *Client {
	return New(Config{
		BaseURL:       baseURL,
		TimeoutHigh:   time.Second,
		TimeoutNormal: 2 * time.Second,
		TimeoutLow:    3 * time.Second,
	})
}

func TestFetchHTMLFragment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			t.Error("missing X-Requested-With header")
		}
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("<div>row</div>"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Fetch(context.Background(), Request{URL: "/api/row", ContentType: "fragment"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if resp.Payload.Kind != payload.KindHTML || resp.Payload.HTML != "<div>row</div>" {
		t.Errorf("payload = %+v", resp.Payload)
	}
	if resp.ETag != `"v1"` {
		t.Errorf("etag = %q", resp.ETag)
	}
}

func TestFetchClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"500 is server error", 500, func(t *testing.T, err error) {
			var se *faults.HTTPServerError
			if !errors.As(err, &se) {
				t.Errorf("want HTTPServerError, got %v", err)
			}
		}},
		{"404 is client error", 404, func(t *testing.T, err error) {
			var ce *faults.HTTPClientError
			if !errors.As(err, &ce) {
				t.Errorf("want HTTPClientError, got %v", err)
			}
			if ce != nil && ce.StatusCode != 404 {
				t.Errorf("status = %d", ce.StatusCode)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.Fetch(context.Background(), Request{URL: "/x", ContentType: "fragment"})
			if err == nil {
				t.Fatal("expected an error")
			}
			tt.check(t, err)
		})
	}
}

func TestFetchTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:       srv.URL,
		TimeoutHigh:   50 * time.Millisecond,
		TimeoutNormal: 50 * time.Millisecond,
		TimeoutLow:    50 * time.Millisecond,
	})

	_, err := c.Fetch(context.Background(), Request{URL: "/slow", ContentType: "fragment"})
	var te *faults.TimeoutError
	if !errors.As(err, &te) {
		t.Errorf("want TimeoutError, got %v", err)
	}
}

func TestFetchNetworkErrorClassified(t *testing.T) {
	// Closed port: connection refused.
	c := newTestClient("http://127.0.0.1:1")
	_, err := c.Fetch(context.Background(), Request{URL: "/x", ContentType: "fragment"})
	var ne *faults.NetworkError
	if !errors.As(err, &ne) {
		t.Errorf("want NetworkError, got %v", err)
	}
}

func TestFetchCallerCancellationPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Fetch(ctx, Request{URL: "/x", ContentType: "fragment"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestFetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != `"v1"` {
			t.Errorf("If-None-Match = %q", r.Header.Get("If-None-Match"))
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Fetch(context.Background(), Request{URL: "/x", ContentType: "home", ETag: `"v1"`})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !resp.NotModified {
		t.Error("expected NotModified")
	}
}

func TestFetchRejectsUnusablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": "backend exploded"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), Request{URL: "/x", ContentType: "home"})
	var pe *faults.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("want ParseError, got %v", err)
	}
}

func TestForceRefreshHeadersAndCacheBust(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cache-Control") != "no-cache" {
			t.Errorf("Cache-Control = %q, want no-cache", r.Header.Get("Cache-Control"))
		}
		if r.Header.Get("If-None-Match") != "" {
			t.Error("forced refresh must not send conditional headers")
		}
		if r.URL.Query().Get("_cb") == "" {
			t.Error("forced refresh should carry the cache-bust parameter")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<div/>"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), Request{
		URL: "/x", ContentType: "home", ForceRefresh: true, ETag: `"v1"`,
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
}

func TestPriorityHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Priority") != "high" {
			t.Errorf("X-Priority = %q", r.Header.Get("X-Priority"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), Request{
		URL: "/x", ContentType: "home", Priority: scheduler.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"circuit_breaker_open": true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	report, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !report.CircuitBreakerOpen {
		t.Error("expected circuit_breaker_open to be decoded")
	}
}
