// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sherchat/relay/internal/models"
)

// ListStickers returns the default sticker set plus the caller's custom
// stickers.
func (h *Handler) ListStickers(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	stickers, err := h.store.ListStickers(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stickers", err)
		return
	}

	respondData(w, http.StatusOK, stickers)
}

// CreateSticker saves a custom sticker reference for the caller.
func (h *Handler) CreateSticker(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req CreateStickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	sticker := &models.Sticker{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      req.Name,
		URL:       req.URL,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateSticker(r.Context(), sticker); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save sticker", err)
		return
	}

	respondData(w, http.StatusCreated, sticker)
}
