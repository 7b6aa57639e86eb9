// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientIDCounter generates unique, monotonically increasing connection ids.
// DETERMINISM: Ids give broadcasts a stable sort key, eliminating
// non-deterministic map iteration order.
var clientIDCounter atomic.Uint64

// Client is one authenticated connection: the middleman between the
// websocket transport and the relay. Its identity is resolved once at
// admission and trusted for every later event.
type Client struct {
	id    uint64
	relay *Relay
	hub   *Hub
	conn  *websocket.Conn

	// send carries outbound events to writePump. The hub closes it when the
	// connection is dropped; sendMu and sendClosed keep the readPump's reply
	// path from racing that close.
	send       chan Event
	sendMu     sync.Mutex
	sendClosed bool

	user *models.User

	// initialRooms is the room set loaded at admission. The hub applies it
	// inside registerClient, under the same lock as the registry insert, so
	// there is no window where the connection is registered but subscribed
	// to nothing.
	initialRooms []string

	// limiter throttles inbound events per connection.
	limiter *rate.Limiter

	maxMessageSize int64
}

func newClient(r *Relay, conn *websocket.Conn, user *models.User) *Client {
	cfg := r.cfg.Relay
	return &Client{
		id:             clientIDCounter.Add(1),
		relay:          r,
		hub:            r.hub,
		conn:           conn,
		send:           make(chan Event, cfg.SendBuffer),
		user:           user,
		limiter:        rate.NewLimiter(rate.Limit(cfg.InboundRate), cfg.InboundBurst),
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// User returns the identity resolved at admission.
func (c *Client) User() *models.User {
	return c.user
}

// reply queues an event for this connection only. Fire-and-forget; a full
// buffer or a closed connection drops the reply rather than blocking or
// panicking in the dispatch loop.
func (c *Client) reply(event Event) {
	c.trySend(event)
}

// trySend queues an event for writePump unless the connection has been
// closed or its buffer is full. Reports whether the event was queued.
func (c *Client) trySend(event Event) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Only the hub goroutine
// calls this; every other writer goes through trySend.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

// readPump reads inbound frames and dispatches them sequentially. One event
// is fully handled before the next is read, so a sender's events take
// effect in submission order.
func (c *Client) readPump() {
	defer func() {
		c.relay.drop(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Error().Err(err).Uint64("connection_id", c.id).Msg("unexpected websocket close error")
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.reply(NewErrorEvent("malformed event"))
			continue
		}

		if !c.limiter.Allow() {
			c.reply(NewErrorEvent("rate limit exceeded"))
			continue
		}

		c.relay.dispatch(c, &env)
	}
}

// writePump drains the send channel to the websocket connection and keeps
// the transport alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				logging.Error().Err(err).Str("event", event.Event).Msg("failed to marshal event")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Error().Err(err).Msg("failed to write event")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// start begins reading and writing for the client.
func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}
