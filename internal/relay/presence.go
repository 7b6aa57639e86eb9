// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package relay

import (
	"sync"

	"github.com/sherchat/relay/internal/metrics"
)

// PresenceRegistry tracks the number of live connections per user. A user is
// online iff their count is positive; entries are removed at zero. Counting
// connections instead of holding a single socket id means a second device
// cannot clobber the first, and a stale disconnect cannot flip a user
// offline while another connection is live.
type PresenceRegistry struct {
	mu     sync.RWMutex
	counts map[string]int
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{counts: make(map[string]int)}
}

// ConnectionOpened increments the user's live-connection count and reports
// whether this was the 0->1 transition, the only point at which an online
// event should be emitted.
func (p *PresenceRegistry) ConnectionOpened(userID string) (first bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[userID]++
	if p.counts[userID] == 1 {
		metrics.OnlineUsers.Set(float64(len(p.counts)))
		return true
	}
	return false
}

// ConnectionClosed decrements the user's count and reports whether this was
// the 1->0 transition. Closing a connection for a user with no entry is a
// no-op; counts never go negative.
func (p *PresenceRegistry) ConnectionClosed(userID string) (last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	count, ok := p.counts[userID]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(p.counts, userID)
		metrics.OnlineUsers.Set(float64(len(p.counts)))
		return true
	}
	p.counts[userID] = count - 1
	return false
}

// IsOnline reports whether the user has at least one live connection.
func (p *PresenceRegistry) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts[userID] > 0
}

// OnlineCount returns the number of distinct online users.
func (p *PresenceRegistry) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.counts)
}

// Connections returns the live-connection count for a user.
func (p *PresenceRegistry) Connections(userID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts[userID]
}
