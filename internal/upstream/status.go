// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contentgate/internal/faults"
)

// StatusReport is the upstream's own health self-report.
type StatusReport struct {
	CircuitBreakerOpen bool `json:"circuit_breaker_open"`
}

// Status polls the upstream /api/status endpoint. It is independent of
// content loads: the notifier calls it on its own cadence to drive the UI
// health banner.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	target := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/api/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &faults.NetworkError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.classifyTransport(ctx, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, &faults.HTTPServerError{URL: target, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return nil, &faults.HTTPClientError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &faults.NetworkError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	var report StatusReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, &faults.ParseError{URL: target, Reason: "undecodable status body"}
	}
	return &report, nil
}
