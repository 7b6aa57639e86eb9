// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package auth

import "errors"

// Connection-time authentication errors. All of them are fatal to the
// connection being admitted: the transport is refused before any presence or
// subscription state exists.
var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("authentication required")

	// ErrInvalidToken indicates the token failed signature, structure, or
	// expiry validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownUser indicates a valid token for a user that no longer exists.
	ErrUnknownUser = errors.New("user not found")

	// ErrInvalidCredentials indicates a failed username/password login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
