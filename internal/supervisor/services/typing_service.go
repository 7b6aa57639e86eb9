// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package services

import (
	"context"
)

// ContextSweeper matches *relay.TypingTracker's Serve method.
type ContextSweeper interface {
	Serve(ctx context.Context) error
}

// TypingSweeperService wraps the typing TTL sweeper as a supervised
// service. The sweeper emits synthetic stop events for typing indicators
// whose deadlines have passed, so a crashed sender never leaves a room
// stuck in the typing state.
type TypingSweeperService struct {
	sweeper ContextSweeper
	name    string
}

// NewTypingSweeperService creates a new typing sweeper service wrapper.
func NewTypingSweeperService(sweeper ContextSweeper) *TypingSweeperService {
	return &TypingSweeperService{
		sweeper: sweeper,
		name:    "typing-sweeper",
	}
}

// Serve implements suture.Service.
func (s *TypingSweeperService) Serve(ctx context.Context) error {
	return s.sweeper.Serve(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (s *TypingSweeperService) String() string {
	return s.name
}
