// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"net/http"

	"github.com/sherchat/relay/internal/models"
)

// SearchUsers finds users by username prefix. Presence comes from the
// relay's registry, not the stored flag, so results reflect live
// connections.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	caller := UserFromContext(r.Context())

	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Query parameter q is required", nil)
		return
	}

	limit := getIntParam(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	users, err := h.store.SearchUsers(r.Context(), query, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to search users", err)
		return
	}

	results := make([]models.PublicUser, 0, len(users))
	for _, user := range users {
		if user.ID == caller.ID {
			continue
		}
		pub := user.Public()
		pub.IsOnline = h.relay.Presence().IsOnline(user.ID)
		results = append(results, pub)
	}

	respondData(w, http.StatusOK, results)
}
