// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package relay

import (
	"github.com/goccy/go-json"

	"github.com/sherchat/relay/internal/models"
)

// Inbound event names. These form a closed set; anything else is answered
// with an error event and otherwise ignored.
const (
	EventRoomJoin    = "room:join"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventMessageRead = "message:read"
	EventPing        = "ping"
)

// Outbound event names.
const (
	EventUserOnline      = "user:online"
	EventMessageReceived = "message:received"
	EventTypingUpdate    = "typing:update"
	EventReadUpdate      = "message:read"
	EventError           = "error"
	EventPong            = "pong"
)

// Event is an outbound frame: a tagged payload serialized as
// {"event": "...", "data": {...}}.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Envelope is an inbound frame before payload decoding. Data stays raw until
// the event name selects the concrete payload type.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRoomPayload subscribes the connection to a room's fan-out set.
type JoinRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// SendMessagePayload carries a new message. The sender identity is taken
// from the connection, never from the payload.
type SendMessagePayload struct {
	RoomID     string `json:"roomId" validate:"required"`
	Content    string `json:"content" validate:"required_without=StickerURL,max=4096"`
	Kind       string `json:"kind" validate:"omitempty,oneof=text sticker image"`
	StickerURL string `json:"stickerUrl" validate:"omitempty,max=512"`
}

// TypingPayload names the room a typing start/stop applies to.
type TypingPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// ReadPayload marks a message as read by the caller.
type ReadPayload struct {
	MessageID string `json:"messageId" validate:"required"`
	RoomID    string `json:"roomId" validate:"required"`
}

// PresencePayload is broadcast globally on a user's 0<->1 connection
// transitions.
type PresencePayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// TypingUpdatePayload is relayed to every other subscriber of the room.
type TypingUpdatePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// ReadUpdatePayload is broadcast to the room after a receipt persists.
type ReadUpdatePayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessageEvent wraps a persisted message for room fan-out.
func NewMessageEvent(msg *models.PopulatedMessage) Event {
	return Event{Event: EventMessageReceived, Data: msg}
}

// NewErrorEvent builds an origin-only error reply.
func NewErrorEvent(message string) Event {
	return Event{Event: EventError, Data: ErrorPayload{Message: message}}
}
