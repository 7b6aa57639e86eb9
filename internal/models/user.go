// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package models defines the persisted entities and wire payloads shared
// across the store, relay, and API layers.
package models

import "time"

// User is a registered account. Its JSON form is the store's on-disk
// representation and includes the credential hash; every client-facing
// surface goes through Public() instead.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Avatar       string    `json:"avatar,omitempty"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUser is the client-facing projection of a User.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"isOnline"`
}

// Public returns the client-facing projection of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		IsOnline: u.IsOnline,
	}
}
