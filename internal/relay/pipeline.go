// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package relay

import (
	"context"
	"time"

	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/metrics"
	"github.com/sherchat/relay/internal/models"
)

const storeOpTimeout = 10 * time.Second

// handleSendMessage runs the message pipeline: construct, persist, update
// the room's last-message pointer, broadcast. Persist-before-broadcast is
// the ordering rule; a message another member observes is always durably
// stored. The sender identity comes from the connection, and the dispatch
// loop runs one event at a time per connection, so one sender's messages
// commit and broadcast in submission order.
func (r *Relay) handleSendMessage(c *Client, payload *SendMessagePayload) {
	kind := payload.Kind
	if kind == "" {
		kind = models.MessageKindText
	}

	msg := &models.Message{
		SenderID:   c.user.ID,
		RoomID:     payload.RoomID,
		Content:    payload.Content,
		Kind:       kind,
		StickerURL: payload.StickerURL,
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	if err := r.store.SaveMessage(ctx, msg); err != nil {
		metrics.MessageSendErrors.Inc()
		logging.Error().Err(err).
			Uint64("connection_id", c.id).
			Str("room_id", payload.RoomID).
			Msg("failed to persist message")
		c.reply(NewErrorEvent("Failed to send message"))
		return
	}

	// The pointer carries the commit timestamp; across senders the room's
	// ordering is commit order, not send order. A pointer update failure
	// does not retract a durably stored message.
	if err := r.store.UpdateRoomLastMessage(ctx, msg.RoomID, msg.ID, msg.CreatedAt); err != nil {
		logging.Error().Err(err).
			Str("room_id", msg.RoomID).
			Str("message_id", msg.ID).
			Msg("failed to update room last message")
	}

	metrics.MessagesSent.WithLabelValues(kind).Inc()

	// Fan out to every subscriber, the sender's own connections included;
	// consumers dedupe by message id.
	populated := &models.PopulatedMessage{
		Message: *msg,
		Sender:  c.user.Public(),
	}
	r.hub.BroadcastRoom(msg.RoomID, 0, NewMessageEvent(populated))
}
