// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package relay

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub creates and starts a hub, stopping it when the test ends.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return hub
}

// createTestClient creates a client with no transport attached; tests read
// delivered events straight from the send channel.
func createTestClient(hub *Hub, userID string) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Event, 256),
		user: &models.User{ID: userID, Username: "user-" + userID},
	}
}

// registerClient registers a client and waits for registration to complete.
func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

// recvEvent reads one event from a client's send channel or fails the test.
func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case event := <-c.send:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// assertNoEvent asserts nothing is delivered to the client within a short
// window.
func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case event := <-c.send:
		t.Fatalf("unexpected event delivered: %s", event.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	if hub.clients == nil {
		t.Error("clients map not initialized")
	}
	if hub.rooms == nil {
		t.Error("rooms map not initialized")
	}
	if hub.broadcast == nil {
		t.Error("broadcast channel not initialized")
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := setupHub(t)

	client := createTestClient(hub, "u1")
	registerClient(hub, client)

	if got := hub.GetClientCount(); got != 1 {
		t.Fatalf("expected 1 client, got %d", got)
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if got := hub.GetClientCount(); got != 0 {
		t.Fatalf("expected 0 clients after unregister, got %d", got)
	}

	// Unregistering again must not panic or double-close.
	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)
}

func TestHub_SubscribeIdempotent(t *testing.T) {
	hub := setupHub(t)

	client := createTestClient(hub, "u1")
	registerClient(hub, client)

	hub.Subscribe(client, "r1")
	hub.Subscribe(client, "r1")
	hub.Subscribe(client, "r1")

	if got := hub.RoomSubscriberCount("r1"); got != 1 {
		t.Fatalf("expected 1 subscriber after repeated joins, got %d", got)
	}
}

func TestHub_SubscribeUnknownClient(t *testing.T) {
	hub := setupHub(t)

	// Never registered; subscription must be refused, not leak a target.
	stray := createTestClient(hub, "ghost")
	hub.Subscribe(stray, "r1")

	if got := hub.RoomSubscriberCount("r1"); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}

func TestHub_BroadcastRoomTargeting(t *testing.T) {
	hub := setupHub(t)

	inRoom := createTestClient(hub, "u1")
	alsoInRoom := createTestClient(hub, "u2")
	outside := createTestClient(hub, "u3")
	for _, c := range []*Client{inRoom, alsoInRoom, outside} {
		registerClient(hub, c)
	}
	hub.Subscribe(inRoom, "r1")
	hub.Subscribe(alsoInRoom, "r1")
	hub.Subscribe(outside, "r2")

	hub.BroadcastRoom("r1", 0, Event{Event: "test", Data: "hello"})
	time.Sleep(20 * time.Millisecond)

	if got := recvEvent(t, inRoom); got.Event != "test" {
		t.Errorf("expected test event, got %s", got.Event)
	}
	recvEvent(t, alsoInRoom)
	assertNoEvent(t, outside)
}

func TestHub_BroadcastRoomExcludesOrigin(t *testing.T) {
	hub := setupHub(t)

	origin := createTestClient(hub, "u1")
	observer := createTestClient(hub, "u2")
	registerClient(hub, origin)
	registerClient(hub, observer)
	hub.Subscribe(origin, "r1")
	hub.Subscribe(observer, "r1")

	hub.BroadcastRoom("r1", origin.id, Event{Event: "typing:update"})
	time.Sleep(20 * time.Millisecond)

	recvEvent(t, observer)
	assertNoEvent(t, origin)
}

func TestHub_BroadcastGlobal(t *testing.T) {
	hub := setupHub(t)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = createTestClient(hub, "u"+string(rune('1'+i)))
		registerClient(hub, clients[i])
	}

	hub.BroadcastGlobal(Event{Event: "user:online"})
	time.Sleep(20 * time.Millisecond)

	for _, c := range clients {
		recvEvent(t, c)
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub := setupHub(t)

	slow := createTestClient(hub, "u1")
	slow.send = make(chan Event, 1)
	healthy := createTestClient(hub, "u2")
	registerClient(hub, slow)
	registerClient(hub, healthy)
	hub.Subscribe(slow, "r1")
	hub.Subscribe(healthy, "r1")

	// Fill the slow client's buffer, then broadcast once more; the full
	// buffer must get the connection removed without stalling siblings.
	hub.BroadcastRoom("r1", 0, Event{Event: "one"})
	time.Sleep(20 * time.Millisecond)
	hub.BroadcastRoom("r1", 0, Event{Event: "two"})
	time.Sleep(20 * time.Millisecond)

	if got := hub.GetClientCount(); got != 1 {
		t.Fatalf("expected slow client to be dropped, have %d clients", got)
	}
	if got := hub.RoomSubscriberCount("r1"); got != 1 {
		t.Fatalf("expected slow client removed from room, have %d subscribers", got)
	}

	recvEvent(t, healthy)
	recvEvent(t, healthy)
}

func TestHub_ReplyAfterDropDoesNotPanic(t *testing.T) {
	hub := setupHub(t)

	slow := createTestClient(hub, "u1")
	slow.send = make(chan Event, 1)
	registerClient(hub, slow)
	hub.Subscribe(slow, "r1")

	hub.BroadcastRoom("r1", 0, Event{Event: "one"})
	time.Sleep(20 * time.Millisecond)
	hub.BroadcastRoom("r1", 0, Event{Event: "two"})
	time.Sleep(20 * time.Millisecond)

	if got := hub.GetClientCount(); got != 0 {
		t.Fatalf("expected slow client to be dropped, have %d clients", got)
	}

	// The connection's read side may still be dispatching when the hub
	// closes the send channel; a late reply must be discarded, not panic.
	slow.reply(NewErrorEvent("rate limit exceeded"))
	if slow.trySend(Event{Event: "late"}) {
		t.Error("send succeeded on a dropped connection")
	}
}

func TestHub_RegisterAppliesInitialRooms(t *testing.T) {
	hub := setupHub(t)

	client := createTestClient(hub, "u1")
	client.initialRooms = []string{"r1", "r2"}
	hub.Register <- client

	// Subscriptions land in the same critical section as the registry
	// insert, so the moment the client is visible it is already subscribed.
	deadline := time.Now().Add(time.Second)
	for hub.GetClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}
	if !hub.IsSubscribed(client, "r1") || !hub.IsSubscribed(client, "r2") {
		t.Fatal("registered client missing connect-time subscriptions")
	}

	hub.BroadcastRoom("r1", 0, Event{Event: "test"})
	time.Sleep(20 * time.Millisecond)
	if got := recvEvent(t, client); got.Event != "test" {
		t.Errorf("expected test event, got %s", got.Event)
	}
}

func TestHub_RoomBroadcastWaitsWhenQueueFull(t *testing.T) {
	hub := NewHub()

	// Saturate the fan-out queue; no consumer is running yet.
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.BroadcastGlobal(Event{Event: "filler"})
	}
	// Another global event is dropped outright.
	hub.BroadcastGlobal(Event{Event: "overflow"})

	done := make(chan struct{})
	go func() {
		hub.BroadcastRoom("r1", 0, Event{Event: "durable"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("room broadcast returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("room broadcast still blocked after the queue drained")
	}
}

func TestHub_UnregisterRemovesFromRooms(t *testing.T) {
	hub := setupHub(t)

	client := createTestClient(hub, "u1")
	registerClient(hub, client)
	hub.Subscribe(client, "r1")
	hub.Subscribe(client, "r2")

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.RoomSubscriberCount("r1") != 0 || hub.RoomSubscriberCount("r2") != 0 {
		t.Fatal("unregistered client still present in room subscriber sets")
	}
}

func TestHub_ClientsForUser(t *testing.T) {
	hub := setupHub(t)

	first := createTestClient(hub, "u1")
	second := createTestClient(hub, "u1")
	other := createTestClient(hub, "u2")
	for _, c := range []*Client{first, second, other} {
		registerClient(hub, c)
	}

	mine := hub.ClientsForUser("u1")
	if len(mine) != 2 {
		t.Fatalf("expected 2 connections for u1, got %d", len(mine))
	}
	if mine[0].id > mine[1].id {
		t.Error("connections not sorted by id")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(hub, "u1")
	registerClient(hub, client)

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after cancel")
	}

	if _, open := <-client.send; open {
		t.Error("client send channel not closed on shutdown")
	}
	if got := hub.GetClientCount(); got != 0 {
		t.Errorf("expected 0 clients after shutdown, got %d", got)
	}
}
