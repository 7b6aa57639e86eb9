// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package models

import "time"

// Room types.
const (
	RoomTypePrivate = "private"
	RoomTypeGroup   = "group"
)

// Room is a named set of member users whose messages are mutually visible.
//
// LastMessageID and LastActivity form the room's "last message" pointer.
// The pointer advances in commit order: the message whose persistence
// completed last wins, regardless of the order the sends were issued
// across different senders.
type Room struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Members       []string  `json:"members"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	LastActivity  time.Time `json:"lastActivity"`
	Avatar        string    `json:"avatar,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasMember reports whether userID is a member of the room.
func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}
