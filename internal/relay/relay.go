// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package relay implements the real-time synchronization engine: presence
// tracking, room subscription and fan-out, the persist-then-emit message
// pipeline, typing relay, and read receipts. A connection is authenticated
// once at admission; every later inbound event is dispatched through a
// single exhaustive switch over a closed event set.
package relay

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/models"
	"github.com/sherchat/relay/internal/store"
	"github.com/sherchat/relay/internal/validation"
)

// Relay wires the hub, presence registry, typing tracker, and store into the
// event-dispatch pipeline.
type Relay struct {
	hub      *Hub
	store    store.Store
	presence *PresenceRegistry
	typing   *TypingTracker
	cfg      *config.Config
}

// New creates a Relay. The hub and typing tracker still need to be run,
// normally under supervision; see Hub.RunWithContext and
// TypingTracker.Serve.
func New(s store.Store, cfg *config.Config) *Relay {
	hub := NewHub()
	return &Relay{
		hub:      hub,
		store:    s,
		presence: NewPresenceRegistry(),
		typing:   NewTypingTracker(hub, &cfg.Typing),
		cfg:      cfg,
	}
}

// Hub exposes the fan-out core, mainly for supervision wiring.
func (r *Relay) Hub() *Hub {
	return r.hub
}

// Typing exposes the typing tracker for supervision wiring.
func (r *Relay) Typing() *TypingTracker {
	return r.typing
}

// Presence exposes the presence registry for read-side rendering.
func (r *Relay) Presence() *PresenceRegistry {
	return r.presence
}

// Admit takes ownership of an authenticated connection: registers it,
// subscribes it to the user's rooms, updates presence, and starts its
// pumps. Authentication has already happened; Admit must not be reached
// by an unauthenticated transport.
func (r *Relay) Admit(ctx context.Context, conn *websocket.Conn, user *models.User) *Client {
	client := newClient(r, conn, user)

	// Room subscriptions are rebuilt from the store on every connect. They
	// ride the Register message; the hub applies them atomically with
	// registration.
	rooms, err := r.store.FindRoomsForUser(ctx, user.ID)
	if err != nil {
		logging.Error().Err(err).Str("user_id", user.ID).Msg("failed to load rooms for connection")
	}
	for _, room := range rooms {
		client.initialRooms = append(client.initialRooms, room.ID)
	}

	r.hub.Register <- client

	if first := r.presence.ConnectionOpened(user.ID); first {
		if err := r.store.MarkUserOnline(ctx, user.ID); err != nil {
			logging.Error().Err(err).Str("user_id", user.ID).Msg("failed to mark user online")
		}
		r.hub.BroadcastGlobal(Event{
			Event: EventUserOnline,
			Data:  PresencePayload{UserID: user.ID, IsOnline: true},
		})
	}

	// Eviction happens after this connection's presence count is up, so the
	// displaced sessions unwinding through drop never touch zero.
	if r.cfg.Presence.SingleSession {
		r.evictExisting(client)
	}

	logging.Info().
		Uint64("connection_id", client.id).
		Str("user_id", user.ID).
		Str("username", user.Username).
		Int("rooms", len(rooms)).
		Msg("connection admitted")

	client.start()
	return client
}

// evictExisting closes the user's other connections when single-session
// mode is on. The closed transports unwind through their own drop path, so
// presence counts stay consistent.
func (r *Relay) evictExisting(keep *Client) {
	for _, existing := range r.hub.ClientsForUser(keep.user.ID) {
		if existing.id == keep.id {
			continue
		}
		logging.Info().
			Uint64("connection_id", existing.id).
			Str("user_id", keep.user.ID).
			Msg("evicting previous session")
		_ = existing.conn.Close()
	}
}

// drop tears down a closed connection: unregisters it from the hub and
// every room set, clears its typing entries, and updates presence. Runs
// exactly once per connection, from the readPump's exit path.
func (r *Relay) drop(c *Client) {
	r.hub.Unregister <- c
	r.typing.ClearClient(c)

	if last := r.presence.ConnectionClosed(c.user.ID); last {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.MarkUserOffline(ctx, c.user.ID, time.Now().UTC()); err != nil {
			logging.Error().Err(err).Str("user_id", c.user.ID).Msg("failed to record last seen")
		}
		r.hub.BroadcastGlobal(Event{
			Event: EventUserOnline,
			Data:  PresencePayload{UserID: c.user.ID, IsOnline: false},
		})
	}
}

// dispatch routes one inbound envelope to its handler. The event set is
// closed; unknown names get an error reply instead of being silently
// ignored.
func (r *Relay) dispatch(c *Client, env *Envelope) {
	switch env.Event {
	case EventRoomJoin:
		var payload JoinRoomPayload
		if !r.decode(c, env.Data, &payload) {
			return
		}
		r.handleJoinRoom(c, &payload)

	case EventMessageSend:
		var payload SendMessagePayload
		if !r.decode(c, env.Data, &payload) {
			return
		}
		r.handleSendMessage(c, &payload)

	case EventTypingStart:
		var payload TypingPayload
		if !r.decode(c, env.Data, &payload) {
			return
		}
		r.typing.Start(c, payload.RoomID)

	case EventTypingStop:
		var payload TypingPayload
		if !r.decode(c, env.Data, &payload) {
			return
		}
		r.typing.Stop(c, payload.RoomID)

	case EventMessageRead:
		var payload ReadPayload
		if !r.decode(c, env.Data, &payload) {
			return
		}
		r.handleMarkRead(c, &payload)

	case EventPing:
		c.reply(Event{Event: EventPong})

	default:
		logging.Debug().
			Str("event", env.Event).
			Uint64("connection_id", c.id).
			Msg("unknown event")
		c.reply(NewErrorEvent("unknown event: " + env.Event))
	}
}

// decode unmarshals and validates an inbound payload. On failure it replies
// to the origin and reports false; no state has changed.
func (r *Relay) decode(c *Client, data json.RawMessage, payload interface{}) bool {
	if err := json.Unmarshal(data, payload); err != nil {
		c.reply(NewErrorEvent("malformed payload"))
		return false
	}
	if err := validation.ValidateStruct(payload); err != nil {
		c.reply(NewErrorEvent("invalid payload: " + err.Error()))
		return false
	}
	return true
}

// handleJoinRoom subscribes the connection to a room's fan-out set.
// Idempotent. Membership is enforced by whoever created or shared the room;
// the subscription itself only affects delivery targeting.
func (r *Relay) handleJoinRoom(c *Client, payload *JoinRoomPayload) {
	r.hub.Subscribe(c, payload.RoomID)
	logging.Debug().
		Uint64("connection_id", c.id).
		Str("room_id", payload.RoomID).
		Msg("joined room")
}
