// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", &NetworkError{URL: "http://x", Err: errors.New("refused")}, true},
		{"timeout error", &TimeoutError{URL: "http://x", Err: context.DeadlineExceeded}, true},
		{"server error", &HTTPServerError{URL: "http://x", StatusCode: 503}, true},
		{"client error", &HTTPClientError{URL: "http://x", StatusCode: 404}, false},
		{"parse error", &ParseError{URL: "http://x", Reason: "bad body"}, false},
		{"circuit open", ErrCircuitOpen, false},
		{"offline", ErrOffline, false},
		{"wrapped server error", fmt.Errorf("attempt 2: %w", &HTTPServerError{URL: "http://x", StatusCode: 500}), true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCountsAgainstBreaker(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"circuit open never counts", ErrCircuitOpen, false},
		{"offline never counts", ErrOffline, false},
		{"network error counts", &NetworkError{URL: "http://x", Err: errors.New("reset")}, true},
		{"timeout counts", &TimeoutError{URL: "http://x", Err: context.DeadlineExceeded}, true},
		{"client error counts", &HTTPClientError{URL: "http://x", StatusCode: 400}, true},
		{"parse error counts", &ParseError{URL: "http://x", Reason: "rejected"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountsAgainstBreaker(tt.err); got != tt.want {
				t.Errorf("CountsAgainstBreaker(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dns failure")
	err := &NetworkError{URL: "http://x", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("NetworkError should unwrap to its cause")
	}

	terr := &TimeoutError{URL: "http://x", Err: context.DeadlineExceeded}
	if !errors.Is(terr, context.DeadlineExceeded) {
		t.Error("TimeoutError should unwrap to its cause")
	}
}
