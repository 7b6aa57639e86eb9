// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package api

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Avatar   string `json:"avatar" validate:"omitempty,max=512"`
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=128"`
}

// CreateRoomRequest creates a private or group room. Members lists the user
// ids to include; the caller is always added.
type CreateRoomRequest struct {
	Name    string   `json:"name" validate:"required_if=Type group,max=64"`
	Type    string   `json:"type" validate:"required,oneof=private group"`
	Members []string `json:"members" validate:"required,min=1,dive,required"`
	Avatar  string   `json:"avatar" validate:"omitempty,max=512"`
}

// CreateStickerRequest uploads a custom sticker reference for the caller.
type CreateStickerRequest struct {
	Name string `json:"name" validate:"required,max=64"`
	URL  string `json:"url" validate:"required,max=512"`
}
