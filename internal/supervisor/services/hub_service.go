// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package services

import (
	"context"
)

// ContextHub matches *relay.Hub's RunWithContext method.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService wraps the relay hub as a supervised service.
//
// The hub's RunWithContext method already follows the suture.Service
// pattern, so this wrapper delegates to it and provides a name for
// logging.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService creates a new hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{
		hub:  hub,
		name: "relay-hub",
	}
}

// Serve implements suture.Service. RunWithContext processes client
// lifecycle and broadcasts until the context is canceled, then closes all
// clients and returns ctx.Err().
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (s *HubService) String() string {
	return s.name
}
