// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	// This may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// broadcastRequest is one fan-out unit queued on the hub. An empty roomID
// targets every connection; excludeID skips one connection (typing relays
// never echo to their origin).
type broadcastRequest struct {
	roomID    string
	excludeID uint64
	event     Event
}

// Hub owns the connection registry and the per-room subscriber sets, and
// fans events out to them. All fan-out flows through a single queue, so
// events enqueued in order are delivered in order.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	broadcast  chan broadcastRequest
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan broadcastRequest, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// RunWithContext starts the hub with context support for graceful shutdown.
// This method is designed for use with suture supervision.
//
// DETERMINISM: Uses priority-based selection to ensure predictable behavior:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Broadcast requests
// This ensures the subscriber sets are always settled before fan-out, and
// that shutdown preempts both.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
		}

		// Priority 3: Handle broadcasts or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case req := <-h.broadcast:
			h.deliver(req)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	for _, roomID := range client.initialRooms {
		h.subscribeLocked(client, roomID)
	}
	rooms := len(client.initialRooms)
	client.initialRooms = nil
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Uint64("connection_id", client.id).
		Str("user_id", client.user.ID).
		Int("rooms", rooms).
		Int("total_clients", total).
		Msg("connection registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.removeFromRoomsLocked(client)
		client.closeSend()
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Uint64("connection_id", client.id).
		Int("total_clients", total).
		Msg("connection unregistered")
}

// removeFromRoomsLocked strips the client from every subscriber set it is
// in. A connection left behind here would keep receiving room fan-out after
// close, so this runs on every unregister path. Callers hold h.mu.
func (h *Hub) removeFromRoomsLocked(client *Client) {
	for roomID, subs := range h.rooms {
		if subs[client] {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// Subscribe adds the client to a room's subscriber set. Idempotent;
// subscribing an already-subscribed connection is a no-op. Connect-time
// subscriptions do not come through here: they ride the Register message
// as Client.initialRooms and are applied by registerClient.
func (h *Hub) Subscribe(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	h.subscribeLocked(client, roomID)
}

func (h *Hub) subscribeLocked(client *Client, roomID string) {
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Client]bool)
		h.rooms[roomID] = subs
	}
	subs[client] = true
}

// IsSubscribed reports whether the client is in the room's subscriber set.
func (h *Hub) IsSubscribed(client *Client, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][client]
}

// BroadcastRoom queues an event for every connection subscribed to roomID.
// excludeID skips one connection id; pass 0 to include all. The subscriber
// set is snapshotted at delivery time, and delivery to any one connection is
// fire-and-forget.
//
// Room events may carry durable state (a persisted message), so a full
// queue blocks the producer instead of losing the event. The hub is the
// only consumer and never enqueues, so the wait always resolves.
func (h *Hub) BroadcastRoom(roomID string, excludeID uint64, event Event) {
	req := broadcastRequest{roomID: roomID, excludeID: excludeID, event: event}
	select {
	case h.broadcast <- req:
	default:
		metrics.BroadcastQueueWaits.Inc()
		logging.Warn().Str("event", req.event.Event).Str("room_id", roomID).Msg("broadcast queue full, waiting")
		h.broadcast <- req
	}
}

// BroadcastGlobal queues an event for every connected client. Global events
// are presence signals, which the next transition supersedes, so a full
// queue drops the event rather than blocking the caller.
func (h *Hub) BroadcastGlobal(event Event) {
	select {
	case h.broadcast <- broadcastRequest{event: event}:
	default:
		metrics.BroadcastDropped.Inc()
		logging.Warn().Str("event", event.Event).Msg("broadcast queue full, dropping event")
	}
}

// deliver fans one request out to the snapshot of its target set.
// DETERMINISM: Targets are sorted by connection id so delivery order within
// one broadcast is stable across runs.
func (h *Hub) deliver(req broadcastRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var source map[*Client]bool
	if req.roomID == "" {
		source = h.clients
	} else {
		source = h.rooms[req.roomID]
	}

	targets := make([]*Client, 0, len(source))
	for client := range source {
		if client.id == req.excludeID {
			continue
		}
		targets = append(targets, client)
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].id < targets[j].id
	})

	// A full send buffer means a connection that stopped draining; it is
	// dropped rather than allowed to stall its siblings.
	var toRemove []*Client
	for _, client := range targets {
		if !client.trySend(req.event) {
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			h.removeFromRoomsLocked(client)
			client.closeSend()
			metrics.BroadcastDropped.Inc()
			logging.Warn().
				Uint64("connection_id", client.id).
				Str("user_id", client.user.ID).
				Msg("send buffer full, dropping connection")
		}
	}
}

// ClientsForUser returns a snapshot of the user's live connections, sorted
// by connection id.
func (h *Hub) ClientsForUser(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []*Client
	for client := range h.clients {
		if client.user.ID == userID {
			result = append(result, client)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].id < result[j].id
	})
	return result
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSubscriberCount returns the size of a room's subscriber set.
func (h *Hub) RoomSubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()
	reason := getShutdownReason(ctx)

	logging.Info().
		Str("component", "relay-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("relay hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients closes every connected client during shutdown.
// DETERMINISM: Closes clients in connection id order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		client.closeSend()
		delete(h.clients, client)
	}
	h.rooms = make(map[string]map[*Client]bool)
	metrics.WSConnections.Set(0)
	logging.Info().Msg("closed all relay clients during shutdown")
}
