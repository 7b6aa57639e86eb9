// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package store is the persistence adapter for users, rooms, messages, and
// stickers. The relay treats it as the single source of truth for durable
// state; in-memory presence and subscription tables are caches rebuilt from
// it on every reconnect.
//
// The default implementation is BadgerDB (see badger.go) and can be wrapped
// in a circuit breaker (see breaker.go). Retry policy belongs here, not in
// the relay: the relay surfaces a persistence failure to the acting user
// exactly once and never retries.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sherchat/relay/internal/models"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (e.g. username taken).
	ErrConflict = errors.New("already exists")

	// ErrUnavailable indicates the store is refusing work, e.g. because the
	// circuit breaker is open.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the persistence interface consumed by the relay and the API.
//
// SaveMessage assigns the message ID and commit timestamp; the "last
// message" pointer and message history are both ordered by commit, not by
// client send time.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error)
	MarkUserOnline(ctx context.Context, id string) error
	MarkUserOffline(ctx context.Context, id string, lastSeen time.Time) error

	// Rooms
	CreateRoom(ctx context.Context, room *models.Room) error
	FindRoom(ctx context.Context, id string) (*models.Room, error)
	FindRoomsForUser(ctx context.Context, userID string) ([]*models.Room, error)
	UpdateRoomLastMessage(ctx context.Context, roomID, messageID string, at time.Time) error

	// Messages
	SaveMessage(ctx context.Context, msg *models.Message) error
	FindMessage(ctx context.Context, id string) (*models.Message, error)
	MessagesForRoom(ctx context.Context, roomID string, limit int, before time.Time) ([]*models.Message, error)
	// AppendReadReceipt adds userID to the message's read-set and returns
	// the room the message belongs to, so callers broadcast the receipt to
	// the stored room rather than a client-claimed one.
	AppendReadReceipt(ctx context.Context, messageID, userID string) (roomID string, err error)

	// Stickers
	CreateSticker(ctx context.Context, sticker *models.Sticker) error
	ListStickers(ctx context.Context, userID string) ([]*models.Sticker, error)

	Close() error
}
