// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contentgate/internal/loader"
	"github.com/tomtom215/contentgate/internal/logging"
	"github.com/tomtom215/contentgate/internal/notifier"
	"github.com/tomtom215/contentgate/internal/payload"
	"github.com/tomtom215/contentgate/internal/scheduler"
)

// Handler serves the UI-facing endpoints.
type Handler struct {
	loader   *loader.Loader
	notifier *notifier.Notifier
}

// NewHandler creates the API handler.
func NewHandler(l *loader.Loader, n *notifier.Notifier) *Handler {
	return &Handler{loader: l, notifier: n}
}

// ContentResponse is the wire form of a load result. Exactly one of HTML or
// Data is set when a payload is present; neither when Unavailable.
type ContentResponse struct {
	Source      string          `json:"source"`
	Stale       bool            `json:"stale"`
	StaleReason string          `json:"stale_reason,omitempty"`
	AgeSeconds  float64         `json:"age_seconds,omitempty"`
	Unavailable bool            `json:"unavailable,omitempty"`
	Retryable   bool            `json:"retryable,omitempty"`
	Error       string          `json:"error,omitempty"`
	HTML        string          `json:"html,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Content loads a content region through the resilience layer.
//
// Query parameters: url (required), type (required), priority
// (high|normal|low, default normal), refresh (true forces revalidation).
func (h *Handler) Content(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	intent := loader.Intent{
		URL:         q.Get("url"),
		ContentType: q.Get("type"),
		Priority:    scheduler.Parse(q.Get("priority")),
	}
	if intent.URL == "" || intent.ContentType == "" {
		writeError(w, http.StatusBadRequest, "url and type query parameters are required")
		return
	}

	var res loader.Result
	if q.Get("refresh") == "true" {
		res = h.loader.LoadRefresh(r.Context(), intent)
	} else {
		res = h.loader.Load(r.Context(), intent)
	}

	resp := ContentResponse{
		Source:      string(res.Source),
		Stale:       res.Stale,
		StaleReason: string(res.StaleReason),
		AgeSeconds:  res.Age.Seconds(),
		Unavailable: res.Unavailable,
		Retryable:   res.Retryable,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	switch res.Payload.Kind {
	case payload.KindHTML:
		resp.HTML = res.Payload.HTML
	case payload.KindStructured:
		resp.Data = res.Payload.Data
	}

	// The HTTP status is 200 even for stale fallbacks: the UI renders the
	// body either way and branches on the flags, not the status code.
	status := http.StatusOK
	if res.Unavailable {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, resp)
}

// Status serves the merged health status for the UI banner.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notifier.Current())
}

// HealthLive is the liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
