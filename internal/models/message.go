// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package models

import "time"

// Message kinds.
const (
	MessageKindText    = "text"
	MessageKindSticker = "sticker"
	MessageKindImage   = "image"
)

// Message is a persisted chat message.
//
// ID and CreatedAt are assigned by the store at persistence commit, not at
// send time. The message is immutable after commit except for ReadBy, which
// only grows (monotonic set union, the sender is always present).
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	RoomID     string    `json:"roomId"`
	Content    string    `json:"content"`
	Kind       string    `json:"kind"`
	StickerURL string    `json:"stickerUrl,omitempty"`
	ReadBy     []string  `json:"readBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ReadByUser reports whether userID is in the message's read-set.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// PopulatedMessage is a Message joined with its sender's public profile,
// the shape broadcast to room subscribers as message:received.
type PopulatedMessage struct {
	Message
	Sender PublicUser `json:"sender"`
}
