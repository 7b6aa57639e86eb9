// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package relay

import (
	"context"

	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/metrics"
)

// handleMarkRead adds the caller to a message's read-set and broadcasts the
// receipt to the room. The set-union is idempotent, so repeated reads of the
// same message are harmless. Persist-before-broadcast applies here too: a
// failed write is reported to the caller only and nothing is broadcast.
//
// The broadcast targets the room the message was committed to, not the one
// the client claims; a forged roomId cannot leak receipts across rooms.
func (r *Relay) handleMarkRead(c *Client, payload *ReadPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	roomID, err := r.store.AppendReadReceipt(ctx, payload.MessageID, c.user.ID)
	if err != nil {
		logging.Error().Err(err).
			Str("message_id", payload.MessageID).
			Str("user_id", c.user.ID).
			Msg("failed to persist read receipt")
		c.reply(NewErrorEvent("Failed to mark message as read"))
		return
	}

	metrics.ReadReceipts.Inc()
	r.hub.BroadcastRoom(roomID, 0, Event{
		Event: EventReadUpdate,
		Data: ReadUpdatePayload{
			MessageID: payload.MessageID,
			UserID:    c.user.ID,
		},
	})
}
