// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sherchat/relay/internal/models"
	"github.com/sherchat/relay/internal/store"
)

// ListRooms returns the caller's rooms, most recently active first is left
// to the client; the store returns them in key order.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	rooms, err := h.store.FindRoomsForUser(r.Context(), user.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load rooms", err)
		return
	}

	respondData(w, http.StatusOK, rooms)
}

// CreateRoom creates a private or group room containing the caller.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	members := append([]string{user.ID}, req.Members...)
	members = dedupeStrings(members)

	for _, memberID := range members {
		if _, err := h.store.FindUserByID(r.Context(), memberID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusBadRequest, "UNKNOWN_MEMBER", "Unknown member: "+memberID, nil)
				return
			}
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create room", err)
			return
		}
	}

	if req.Type == models.RoomTypePrivate && len(members) != 2 {
		respondError(w, http.StatusBadRequest, "INVALID_MEMBERS", "Private rooms have exactly two members", nil)
		return
	}

	room := &models.Room{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Type:         req.Type,
		Members:      members,
		Avatar:       req.Avatar,
		CreatedAt:    time.Now().UTC(),
		LastActivity: time.Now().UTC(),
	}
	if err := h.store.CreateRoom(r.Context(), room); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create room", err)
		return
	}

	respondData(w, http.StatusCreated, room)
}

// GetRoom returns one room the caller is a member of.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	roomID := chi.URLParam(r, "id")

	room, err := h.store.FindRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Room not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load room", err)
		return
	}
	if !room.HasMember(user.ID) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "Not a member of this room", nil)
		return
	}

	respondData(w, http.StatusOK, room)
}

// RoomMessages returns a page of a room's history, newest first. The
// "before" parameter (RFC3339) pages backwards; "limit" caps the page size.
func (h *Handler) RoomMessages(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	roomID := chi.URLParam(r, "id")

	room, err := h.store.FindRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Room not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load room", err)
		return
	}
	if !room.HasMember(user.ID) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "Not a member of this room", nil)
		return
	}

	limit := getIntParam(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	before := getTimeParam(r, "before")

	messages, err := h.store.MessagesForRoom(r.Context(), roomID, limit, before)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load messages", err)
		return
	}

	populated := make([]*models.PopulatedMessage, 0, len(messages))
	for _, msg := range messages {
		pm := &models.PopulatedMessage{Message: *msg}
		if sender, err := h.store.FindUserByID(r.Context(), msg.SenderID); err == nil {
			pm.Sender = sender.Public()
		}
		populated = append(populated, pm)
	}

	respondData(w, http.StatusOK, populated)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
