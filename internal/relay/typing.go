// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/metrics"
)

type typingKey struct {
	roomID string
	userID string
}

type typingEntry struct {
	username string
	clientID uint64
	deadline time.Time
}

// TypingTracker relays typing indicators and keeps a transient liveness map
// as a safety net: a start that is never followed by a stop (crashed client,
// dropped transport) expires after the configured TTL and a synthetic stop
// is broadcast, so observers never see a stuck indicator. Nothing here is
// persisted.
type TypingTracker struct {
	hub *Hub
	ttl time.Duration

	sweepInterval time.Duration

	mu      sync.Mutex
	entries map[typingKey]typingEntry
}

// NewTypingTracker creates a tracker with the configured TTL and sweep
// cadence.
func NewTypingTracker(hub *Hub, cfg *config.TypingConfig) *TypingTracker {
	return &TypingTracker{
		hub:           hub,
		ttl:           cfg.TTL,
		sweepInterval: cfg.SweepInterval,
		entries:       make(map[typingKey]typingEntry),
	}
}

// Start records a typing start and relays it to every other subscriber of
// the room. Restarting an existing entry just extends its deadline.
func (t *TypingTracker) Start(c *Client, roomID string) {
	t.mu.Lock()
	t.entries[typingKey{roomID: roomID, userID: c.user.ID}] = typingEntry{
		username: c.user.Username,
		clientID: c.id,
		deadline: time.Now().Add(t.ttl),
	}
	t.mu.Unlock()

	metrics.TypingEvents.WithLabelValues("start").Inc()
	t.hub.BroadcastRoom(roomID, c.id, Event{
		Event: EventTypingUpdate,
		Data: TypingUpdatePayload{
			UserID:   c.user.ID,
			Username: c.user.Username,
			IsTyping: true,
		},
	})
}

// Stop clears the entry and relays the stop. Stopping without a prior start
// still relays; observers treat it as a no-op.
func (t *TypingTracker) Stop(c *Client, roomID string) {
	t.mu.Lock()
	delete(t.entries, typingKey{roomID: roomID, userID: c.user.ID})
	t.mu.Unlock()

	metrics.TypingEvents.WithLabelValues("stop").Inc()
	t.hub.BroadcastRoom(roomID, c.id, Event{
		Event: EventTypingUpdate,
		Data: TypingUpdatePayload{
			UserID:   c.user.ID,
			Username: c.user.Username,
			IsTyping: false,
		},
	})
}

// ClearClient removes every entry originated by the closing connection and
// broadcasts synthetic stops for them, so a disconnect mid-typing cannot
// leave a stuck indicator.
func (t *TypingTracker) ClearClient(c *Client) {
	t.mu.Lock()
	var expired []typingKey
	for key, entry := range t.entries {
		if entry.clientID == c.id {
			expired = append(expired, key)
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for _, key := range expired {
		metrics.TypingEvents.WithLabelValues("expired").Inc()
		t.hub.BroadcastRoom(key.roomID, c.id, Event{
			Event: EventTypingUpdate,
			Data: TypingUpdatePayload{
				UserID:   c.user.ID,
				Username: c.user.Username,
				IsTyping: false,
			},
		})
	}
}

// Serve runs the expiry sweeper until the context is canceled. Designed for
// suture supervision.
func (t *TypingTracker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	logging.Info().
		Dur("ttl", t.ttl).
		Dur("sweep_interval", t.sweepInterval).
		Msg("typing sweeper started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "typing-sweeper").Msg("typing sweeper stopped")
			return ctx.Err()
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

// sweep expires entries past their deadline and broadcasts synthetic stops.
func (t *TypingTracker) sweep(now time.Time) {
	t.mu.Lock()
	type expiredEntry struct {
		key   typingKey
		entry typingEntry
	}
	var expired []expiredEntry
	for key, entry := range t.entries {
		if now.After(entry.deadline) {
			expired = append(expired, expiredEntry{key: key, entry: entry})
			delete(t.entries, key)
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		metrics.TypingEvents.WithLabelValues("expired").Inc()
		logging.Debug().
			Str("user_id", e.key.userID).
			Str("room_id", e.key.roomID).
			Msg("typing indicator expired")
		t.hub.BroadcastRoom(e.key.roomID, e.entry.clientID, Event{
			Event: EventTypingUpdate,
			Data: TypingUpdatePayload{
				UserID:   e.key.userID,
				Username: e.entry.username,
				IsTyping: false,
			},
		})
	}
}

// ActiveCount returns the number of live typing entries.
func (t *TypingTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
