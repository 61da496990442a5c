// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package api exposes the local HTTP surface consumed by the browsing UI:
// content loads through the resilience layer, the merged health status,
// and operational endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/contentgate/internal/loader"
	"github.com/tomtom215/contentgate/internal/notifier"
)

// Config holds router settings.
type Config struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// Router wires handlers into the chi mux.
type Router struct {
	cfg      Config
	handler  *Handler
	notifier *notifier.Notifier
}

// NewRouter creates the API router.
func NewRouter(cfg Config, l *loader.Loader, n *notifier.Notifier) *Router {
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &Router{
		cfg:      cfg,
		handler:  NewHandler(l, n),
		notifier: n,
	}
}

// Setup builds the http.Handler with the full middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	if router.cfg.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
	}

	r.Get("/healthz", router.handler.HealthLive)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/content", router.handler.Content)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", router.handler.Status)
	})

	return r
}
