// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"net/http"

	"github.com/sherchat/relay/internal/logging"
)

// WebSocket authenticates the caller and hands the upgraded connection to
// the relay. Authentication happens before the upgrade; a refused
// credential never creates presence or subscription state. The token comes
// from the Authorization header or, for browser clients, the token query
// parameter.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticator.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		logging.Debug().Err(err).Msg("websocket connection refused")
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	h.relay.Admit(r.Context(), conn, user)
}
