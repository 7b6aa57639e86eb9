// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package api provides the HTTP surface around the relay: account and
// session endpoints, room and message history reads, sticker management,
// and the websocket upgrade that hands connections to the relay core.
// Routing uses the Chi router.
package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sherchat/relay/internal/auth"
	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/relay"
	"github.com/sherchat/relay/internal/store"
)

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	store         store.Store
	authenticator *auth.Authenticator
	jwt           *auth.JWTManager
	relay         *relay.Relay
	cfg           *config.Config

	upgrader websocket.Upgrader
}

// NewHandler creates the HTTP handler set.
func NewHandler(s store.Store, authenticator *auth.Authenticator, jwt *auth.JWTManager, r *relay.Relay, cfg *config.Config) *Handler {
	return &Handler{
		store:         s,
		authenticator: authenticator,
		jwt:           jwt,
		relay:         r,
		cfg:           cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.Security.CORSOrigins),
		},
	}
}

// originChecker allows upgrades from the configured CORS origins. "*"
// allows any origin; a nil checker keeps gorilla's same-origin default.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			return func(r *http.Request) bool { return true }
		}
		allowed[origin] = true
	}
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed[origin]
	}
}
