// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherchat/relay/internal/models"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &models.User{
		ID:           "u1",
		Username:     "alice",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateUser(ctx, user))

	t.Run("duplicate username conflicts", func(t *testing.T) {
		dup := &models.User{ID: "u2", Username: "alice"}
		assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrConflict)
	})

	t.Run("find by id", func(t *testing.T) {
		got, err := s.FindUserByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("find by username", func(t *testing.T) {
		got, err := s.FindUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
	})

	t.Run("unknown id not found", func(t *testing.T) {
		_, err := s.FindUserByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("online flag round trip", func(t *testing.T) {
		require.NoError(t, s.MarkUserOnline(ctx, "u1"))
		got, err := s.FindUserByID(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, got.IsOnline)

		lastSeen := time.Now().UTC()
		require.NoError(t, s.MarkUserOffline(ctx, "u1", lastSeen))
		got, err = s.FindUserByID(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, got.IsOnline)
		assert.WithinDuration(t, lastSeen, got.LastSeen, time.Second)
	})
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "alina", "bob"} {
		require.NoError(t, s.CreateUser(ctx, &models.User{ID: "id-" + name, Username: name}))
	}

	results, err := s.SearchUsers(ctx, "ali", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = s.SearchUsers(ctx, "ali", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = s.SearchUsers(ctx, "zzz", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRoomLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &models.Room{
		ID:      "r1",
		Name:    "general",
		Type:    models.RoomTypeGroup,
		Members: []string{"u1", "u2"},
	}
	require.NoError(t, s.CreateRoom(ctx, room))

	got, err := s.FindRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "general", got.Name)

	t.Run("membership index", func(t *testing.T) {
		rooms, err := s.FindRoomsForUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, "r1", rooms[0].ID)

		rooms, err = s.FindRoomsForUser(ctx, "u3")
		require.NoError(t, err)
		assert.Empty(t, rooms)
	})

	t.Run("last message pointer", func(t *testing.T) {
		at := time.Now().UTC()
		require.NoError(t, s.UpdateRoomLastMessage(ctx, "r1", "m1", at))
		got, err := s.FindRoom(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.LastMessageID)
		assert.WithinDuration(t, at, got.LastActivity, time.Second)
	})
}

func TestSaveMessageAssignsIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &models.Message{
		SenderID: "u1",
		RoomID:   "r1",
		Content:  "hello",
		Kind:     models.MessageKindText,
	}
	require.NoError(t, s.SaveMessage(ctx, msg))

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())

	got, err := s.FindMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	// Sender counts as having read their own message.
	require.Len(t, got.ReadBy, 1)
	assert.Equal(t, "u1", got.ReadBy[0])
}

func TestMessagesForRoomOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		msg := &models.Message{SenderID: "u1", RoomID: "r1", Content: "msg", Kind: models.MessageKindText}
		require.NoError(t, s.SaveMessage(ctx, msg))
		ids = append(ids, msg.ID)
		time.Sleep(2 * time.Millisecond)
	}

	// Newest first.
	msgs, err := s.MessagesForRoom(ctx, "r1", 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, ids[4], msgs[0].ID)
	assert.Equal(t, ids[0], msgs[4].ID)

	t.Run("limit", func(t *testing.T) {
		msgs, err := s.MessagesForRoom(ctx, "r1", 2, time.Time{})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, ids[4], msgs[0].ID)
	})

	t.Run("before pagination", func(t *testing.T) {
		msgs, err := s.MessagesForRoom(ctx, "r1", 10, time.Time{})
		require.NoError(t, err)
		cursor := msgs[1].CreatedAt

		page, err := s.MessagesForRoom(ctx, "r1", 10, cursor)
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.Equal(t, ids[2], page[0].ID)
	})

	t.Run("other room isolated", func(t *testing.T) {
		msgs, err := s.MessagesForRoom(ctx, "r2", 10, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestAppendReadReceipt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &models.Message{SenderID: "u1", RoomID: "r1", Content: "hi", Kind: models.MessageKindText}
	require.NoError(t, s.SaveMessage(ctx, msg))

	roomID, err := s.AppendReadReceipt(ctx, msg.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, "r1", roomID)

	got, err := s.FindMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.ReadBy, 2)

	t.Run("idempotent", func(t *testing.T) {
		roomID, err := s.AppendReadReceipt(ctx, msg.ID, "u2")
		require.NoError(t, err)
		assert.Equal(t, "r1", roomID)
		got, err := s.FindMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Len(t, got.ReadBy, 2)
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := s.AppendReadReceipt(ctx, "missing", "u2")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStickers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSticker(ctx, &models.Sticker{ID: "s1", UserID: "", Name: "wave", URL: "/stickers/wave.png", IsDefault: true}))
	require.NoError(t, s.CreateSticker(ctx, &models.Sticker{ID: "s2", UserID: "u1", Name: "custom", URL: "/stickers/custom.png"}))
	require.NoError(t, s.CreateSticker(ctx, &models.Sticker{ID: "s3", UserID: "u2", Name: "other", URL: "/stickers/other.png"}))

	stickers, err := s.ListStickers(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stickers, 2)

	names := []string{stickers[0].Name, stickers[1].Name}
	assert.Contains(t, names, "wave")
	assert.Contains(t, names, "custom")
}
