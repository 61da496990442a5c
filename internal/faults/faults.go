// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package faults defines the error taxonomy for upstream content fetches.
//
// Every failure on the network path is classified into exactly one of these
// categories at the HTTP boundary. The retry policy, circuit breaker, and
// loader all branch on the category, never on raw error strings:
//
//   - NetworkError: connectivity failures (DNS, refused, reset)
//   - TimeoutError: attempt exceeded its deadline
//   - HTTPClientError: 4xx responses, never retried
//   - HTTPServerError: 5xx responses, retryable
//   - ParseError: malformed or rejected payload, never retried
//   - ErrCircuitOpen: breaker refused the attempt, no network I/O happened
package faults

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// before any network attempt is made.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrOffline is returned when the network monitor reports no connectivity
// and the network path is skipped entirely.
var ErrOffline = errors.New("network offline")

// NetworkError wraps a transport-level failure: DNS resolution, connection
// refused, connection reset. Retryable.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError indicates an attempt exceeded its per-priority deadline.
// Treated as a failure for retry and breaker purposes.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout fetching %s: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// HTTPClientError is a 4xx response. Non-retryable: the request itself is
// wrong and repeating it cannot help.
type HTTPClientError struct {
	URL        string
	StatusCode int
}

func (e *HTTPClientError) Error() string {
	return fmt.Sprintf("client error fetching %s: status %d", e.URL, e.StatusCode)
}

// HTTPServerError is a 5xx response. Retryable.
type HTTPServerError struct {
	URL        string
	StatusCode int
}

func (e *HTTPServerError) Error() string {
	return fmt.Sprintf("server error fetching %s: status %d", e.URL, e.StatusCode)
}

// ParseError indicates the response body was unusable: undecodable JSON, an
// error envelope with no content, or a confidence score below threshold.
// Non-retryable and never cached.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid payload from %s: %s", e.URL, e.Reason)
}

// IsTransient reports whether err is a failure class that may succeed on
// retry: network errors, timeouts, and 5xx responses.
func IsTransient(err error) bool {
	var (
		netErr     *NetworkError
		timeoutErr *TimeoutError
		serverErr  *HTTPServerError
	)
	return errors.As(err, &netErr) || errors.As(err, &timeoutErr) || errors.As(err, &serverErr)
}

// CountsAgainstBreaker reports whether err should be recorded as a failure
// in circuit breaker bookkeeping. Breaker rejections and offline skips never
// reached the upstream, so they do not count; client errors and parse errors
// indicate an unusable response from a live upstream and do count.
func CountsAgainstBreaker(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrOffline) {
		return false
	}
	return true
}
