// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package upstream is the outbound HTTP boundary to the remote content API.
//
// Every attempt result is classified into the faults taxonomy exactly once
// here; callers branch on error category, never on status codes. Response
// bodies are decoded into the payload union at this boundary too, so shape
// sniffing never leaks downstream.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/contentgate/internal/faults"
	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/metrics"
	"github.com/tomtom215/contentgate/internal/payload"
	"github.com/tomtom215/contentgate/internal/scheduler"
)

// maxBodySize bounds response reads; content fragments are small and an
// unbounded read is a memory hazard.
const maxBodySize = 4 << 20 // 4MB

// Config holds upstream client settings.
type Config struct {
	BaseURL       string
	TimeoutHigh   time.Duration
	TimeoutNormal time.Duration
	TimeoutLow    time.Duration
	RatePerSecond float64
	RateBurst     int
	UserAgent     string
}

// Request describes one content fetch.
type Request struct {
	// URL is the absolute content URL, or a path resolved against BaseURL.
	URL          string
	ContentType  string
	Priority     scheduler.Priority
	ForceRefresh bool

	// Conditional revalidation headers from the cached entry, if any.
	ETag         string
	LastModified string
}

// Response is a successful (or not-modified) fetch result.
type Response struct {
	// NotModified is set for 304 responses; Payload is empty then and the
	// caller refreshes its cached entry's timestamp instead.
	NotModified  bool
	Payload      payload.Payload
	ETag         string
	LastModified string
}

// Client issues content fetches against the remote API.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New creates an upstream client. The http.Client carries no global
// timeout; deadlines are per-request by priority.
func New(cfg Config) *Client {
	if cfg.TimeoutHigh <= 0 {
		cfg.TimeoutHigh = 5 * time.Second
	}
	if cfg.TimeoutNormal <= 0 {
		cfg.TimeoutNormal = 15 * time.Second
	}
	if cfg.TimeoutLow <= 0 {
		cfg.TimeoutLow = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ContentGate/1.0"
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RatePerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Client{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: limiter,
	}
}

// Timeout returns the attempt deadline for a priority.
func (c *Client) Timeout(p scheduler.Priority) time.Duration {
	switch p {
	case scheduler.PriorityHigh:
		return c.cfg.TimeoutHigh
	case scheduler.PriorityLow:
		return c.cfg.TimeoutLow
	default:
		return c.cfg.TimeoutNormal
	}
}

// Fetch performs one network attempt. The error, if non-nil, is always a
// faults taxonomy error (or a context error when ctx was cancelled by the
// caller rather than the per-attempt deadline).
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.Timeout(req.Priority))
	defer cancel()

	httpReq, err := c.buildRequest(attemptCtx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	metrics.UpstreamDuration.WithLabelValues(req.Priority.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, c.classifyTransport(ctx, req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return c.classifyResponse(req, resp)
}

// buildRequest assembles the outbound request with the resilience-layer
// headers the content API expects.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &faults.NetworkError{URL: req.URL, Err: err}
	}

	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("Accept", "application/json, text/html")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	httpReq.Header.Set("X-Priority", req.Priority.String())

	if req.ForceRefresh {
		httpReq.Header.Set("Cache-Control", "no-cache")
	} else {
		httpReq.Header.Set("Cache-Control", "max-age=0")
		if req.ETag != "" {
			httpReq.Header.Set("If-None-Match", req.ETag)
		}
		if req.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", req.LastModified)
		}
	}

	return httpReq, nil
}

// resolve builds the absolute target URL, adding the cache-busting query
// parameter on forced refresh.
func (c *Client) resolve(req Request) (string, error) {
	raw := req.URL
	u, err := url.Parse(raw)
	if err != nil {
		return "", &faults.NetworkError{URL: raw, Err: err}
	}
	if !u.IsAbs() {
		base, err := url.Parse(c.cfg.BaseURL)
		if err != nil {
			return "", &faults.NetworkError{URL: c.cfg.BaseURL, Err: err}
		}
		u = base.ResolveReference(u)
	}

	if req.ForceRefresh {
		q := u.Query()
		q.Set("_cb", strconv.FormatInt(time.Now().UnixNano(), 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// classifyTransport maps a transport error: the attempt deadline yields
// TimeoutError, caller cancellation passes through, anything else is a
// NetworkError.
func (c *Client) classifyTransport(callerCtx context.Context, reqURL string, err error) error {
	if errors.Is(callerCtx.Err(), context.Canceled) {
		// The caller gave up (shutdown, superseded intent), not the deadline.
		return callerCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		metrics.UpstreamAttempts.WithLabelValues("timeout").Inc()
		return &faults.TimeoutError{URL: reqURL, Err: err}
	}
	metrics.UpstreamAttempts.WithLabelValues("network").Inc()
	return &faults.NetworkError{URL: reqURL, Err: err}
}

// classifyResponse maps an HTTP response to a Response or taxonomy error.
func (c *Client) classifyResponse(req Request, resp *http.Response) (*Response, error) {
	switch {
	case resp.StatusCode == http.StatusNotModified:
		metrics.UpstreamAttempts.WithLabelValues("not_modified").Inc()
		return &Response{
			NotModified:  true,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}, nil

	case resp.StatusCode >= 500:
		metrics.UpstreamAttempts.WithLabelValues("server_error").Inc()
		return nil, &faults.HTTPServerError{URL: req.URL, StatusCode: resp.StatusCode}

	case resp.StatusCode >= 400:
		metrics.UpstreamAttempts.WithLabelValues("client_error").Inc()
		return nil, &faults.HTTPClientError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.UpstreamAttempts.WithLabelValues("network").Inc()
		return nil, &faults.NetworkError{URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}

	decoded := payload.Decode(resp.Header.Get("Content-Type"), body)
	if !decoded.Usable() {
		metrics.UpstreamAttempts.WithLabelValues("parse_error").Inc()
		logging.Warn().Str("url", req.URL).Str("reason", decoded.Reason).Msg("rejected upstream payload")
		return nil, &faults.ParseError{URL: req.URL, Reason: decoded.Reason}
	}

	metrics.UpstreamAttempts.WithLabelValues("success").Inc()
	return &Response{
		Payload:      decoded,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
