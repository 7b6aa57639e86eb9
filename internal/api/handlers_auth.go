// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sherchat/relay/internal/auth"
	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/models"
	"github.com/sherchat/relay/internal/store"
)

// sessionResponse is the payload returned by register and login.
type sessionResponse struct {
	Token string             `json:"token"`
	User  *models.PublicUser `json:"user"`
}

// Register creates an account and issues a session token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", err)
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Avatar:       req.Avatar,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondError(w, http.StatusConflict, "USERNAME_TAKEN", "Username is already taken", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", err)
		return
	}

	token, err := h.jwt.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", err)
		return
	}

	logging.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("account created")

	pub := user.Public()
	respondData(w, http.StatusCreated, sessionResponse{Token: token, User: &pub})
}

// Login authenticates credentials and issues a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	user, token, err := h.authenticator.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed", err)
		return
	}

	pub := user.Public()
	respondData(w, http.StatusOK, sessionResponse{Token: token, User: &pub})
}

// Me returns the authenticated caller's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	pub := user.Public()
	pub.IsOnline = h.relay.Presence().IsOnline(user.ID)
	respondData(w, http.StatusOK, &pub)
}
