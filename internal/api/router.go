// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sherchat/relay/internal/auth"
)

// Router wires handlers and middleware into the HTTP surface.
type Router struct {
	handler       *Handler
	middleware    *ChiMiddleware
	authenticator *auth.Authenticator
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, mw *ChiMiddleware, authenticator *auth.Authenticator) *Router {
	return &Router{
		handler:       handler,
		middleware:    mw,
		authenticator: authenticator,
	}
}

// Setup configures all HTTP routes using the Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS()) // CORS must be global to handle OPTIONS preflight

	authenticate := router.middleware.Authenticate(router.authenticator)

	// Health endpoints stay unauthenticated for probes.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Account endpoints with strict rate limiting against brute force.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)

		r.With(router.middleware.RateLimitLogin()).Post("/register", router.handler.Register)
		r.With(router.middleware.RateLimitLogin()).Post("/login", router.handler.Login)

		r.Group(func(r chi.Router) {
			r.Use(router.middleware.RateLimit())
			r.Use(authenticate)
			r.Get("/me", router.handler.Me)
		})
	})

	// Data endpoints; everything here requires a resolvable identity.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)
		r.Use(router.middleware.RateLimit())
		r.Use(authenticate)

		r.Get("/rooms", router.handler.ListRooms)
		r.Post("/rooms", router.handler.CreateRoom)
		r.Get("/rooms/{id}", router.handler.GetRoom)
		r.Get("/rooms/{id}/messages", router.handler.RoomMessages)

		r.Get("/users", router.handler.SearchUsers)

		r.Get("/stickers", router.handler.ListStickers)
		r.Post("/stickers", router.handler.CreateSticker)
	})

	// The websocket endpoint authenticates inside the handler so a refused
	// credential is answered before the upgrade.
	r.Get("/api/v1/ws", router.handler.WebSocket)

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
