// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sherchat/relay/internal/metrics"
	"github.com/sherchat/relay/internal/models"
	"github.com/sherchat/relay/internal/store"
)

// Authenticator resolves bearer tokens to live user records. A token that
// verifies cryptographically but names a user the store no longer knows is
// rejected; admission requires both a valid signature and a resolvable
// identity.
type Authenticator struct {
	jwt   *JWTManager
	store store.Store
}

// NewAuthenticator creates an Authenticator backed by the given token
// manager and user store.
func NewAuthenticator(jwt *JWTManager, s store.Store) *Authenticator {
	return &Authenticator{jwt: jwt, store: s}
}

// Authenticate validates the token and loads the user it names. It returns
// ErrMissingToken for an empty token, ErrInvalidToken for a token that fails
// verification, and ErrUnknownUser when the subject no longer exists.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		metrics.AuthFailures.WithLabelValues("missing_token").Inc()
		return nil, ErrMissingToken
	}

	claims, err := a.jwt.ValidateToken(token)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("invalid_token").Inc()
		return nil, err
	}

	user, err := a.store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, claims.UserID)
		}
		return nil, fmt.Errorf("failed to load user %s: %w", claims.UserID, err)
	}
	return user, nil
}

// Login checks credentials and issues a session token for the user. It
// returns ErrInvalidCredentials for an unknown username or a wrong password,
// without revealing which.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := a.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.AuthFailures.WithLabelValues("bad_credentials").Inc()
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to load user %s: %w", username, err)
	}

	if err := CheckPassword(user.PasswordHash, password); err != nil {
		metrics.AuthFailures.WithLabelValues("bad_credentials").Inc()
		return nil, "", err
	}

	token, err := a.jwt.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}
	return user, token, nil
}
