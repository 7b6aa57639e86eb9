// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sherchat/relay/internal/store"
)

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// healthStatus is the payload for health endpoints.
type healthStatus struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	OnlineUsers int    `json:"onlineUsers"`
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, healthStatus{Status: "alive"})
}

// HealthReady reports readiness: the store must answer a probe read.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 2*time.Second)
	defer cancel()

	// A miss is a healthy answer; only transport-level failure is not.
	if _, err := h.store.FindUserByID(ctx, "readiness-probe"); err != nil && !isNotFound(err) {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "Store unavailable", err)
		return
	}

	respondData(w, http.StatusOK, healthStatus{
		Status:      "ready",
		Connections: h.relay.Hub().GetClientCount(),
		OnlineUsers: h.relay.Presence().OnlineCount(),
	})
}
