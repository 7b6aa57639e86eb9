// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sherchat/relay/internal/metrics"
	"github.com/sherchat/relay/internal/models"
)

// Key prefixes for BadgerDB storage. Secondary indexes hold the primary key
// as their value so lookups are a prefix scan plus point reads.
const (
	userKeyPrefix        = "user:"
	usernameKeyPrefix    = "user_name:"
	roomKeyPrefix        = "room:"
	roomMemberKeyPrefix  = "room_member:"  // room_member:<userID>:<roomID> -> roomID
	messageKeyPrefix     = "message:"      // message:<id> -> Message
	roomMessageKeyPrefix = "message_room:" // message_room:<roomID>:<nanos>:<id> -> id
	stickerKeyPrefix     = "sticker:"
	stickerUserPrefix    = "sticker_user:" // sticker_user:<userID>:<id> -> id
	stickerDefaultPrefix = "sticker_default:"
)

// Options configures the Badger store.
type Options struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without disk persistence; used in tests.
	InMemory bool
}

// BadgerStore implements Store on BadgerDB.
//
// IDs and commit timestamps are assigned inside the write transaction, so
// the order in which SaveMessage commits is the order the room's history and
// last-message pointer observe.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (and creates if necessary) a Badger-backed store.
func Open(opts Options) (*BadgerStore, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	// Badger's own logger writes unstructured lines; keep it quiet and let
	// callers observe failures through returned errors and metrics.
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// RunGC runs one value-log garbage collection pass. Badger returns an error
// when nothing was rewritten; callers treat that as a clean no-op.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Backup streams a consistent snapshot of entries with version > since to w.
// Returns the version to pass as since on the next incremental backup.
func (s *BadgerStore) Backup(w io.Writer, since uint64) (uint64, error) {
	return s.db.Backup(w, since)
}

// -- Users --

// CreateUser persists a new user. The ID and CreatedAt are assigned here if
// unset. Fails with ErrConflict when the username is taken.
func (s *BadgerStore) CreateUser(ctx context.Context, user *models.User) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("create_user", start, err) }()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		nameKey := []byte(usernameKeyPrefix + strings.ToLower(user.Username))
		if _, getErr := txn.Get(nameKey); getErr == nil {
			return fmt.Errorf("username %q: %w", user.Username, ErrConflict)
		} else if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}

		data, marshalErr := json.Marshal(user)
		if marshalErr != nil {
			return fmt.Errorf("marshal user: %w", marshalErr)
		}
		if setErr := txn.Set([]byte(userKeyPrefix+user.ID), data); setErr != nil {
			return setErr
		}
		return txn.Set(nameKey, []byte(user.ID))
	})
	return err
}

// FindUserByID returns the user with the given id, or ErrNotFound.
func (s *BadgerStore) FindUserByID(ctx context.Context, id string) (user *models.User, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("find_user", start, err) }()

	user = &models.User{}
	err = s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKeyPrefix+id, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindUserByUsername resolves a username through the name index.
func (s *BadgerStore) FindUserByUsername(ctx context.Context, username string) (user *models.User, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("find_user_by_name", start, err) }()

	user = &models.User{}
	err = s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(usernameKeyPrefix + strings.ToLower(username)))
		if errors.Is(getErr, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if getErr != nil {
			return getErr
		}
		var id string
		if valErr := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); valErr != nil {
			return valErr
		}
		return getJSON(txn, userKeyPrefix+id, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SearchUsers returns up to limit users whose username starts with query.
func (s *BadgerStore) SearchUsers(ctx context.Context, query string, limit int) (users []*models.User, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("search_users", start, err) }()

	err = s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(usernameKeyPrefix + strings.ToLower(query))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(users) < limit; it.Next() {
			var id string
			if valErr := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); valErr != nil {
				return valErr
			}
			user := &models.User{}
			if getErr := getJSON(txn, userKeyPrefix+id, user); getErr != nil {
				return getErr
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// MarkUserOnline flags the user online.
func (s *BadgerStore) MarkUserOnline(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("mark_user_online", start, err) }()

	err = s.updateUser(id, func(u *models.User) {
		u.IsOnline = true
	})
	return err
}

// MarkUserOffline flags the user offline and records last-seen.
func (s *BadgerStore) MarkUserOffline(ctx context.Context, id string, lastSeen time.Time) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("mark_user_offline", start, err) }()

	err = s.updateUser(id, func(u *models.User) {
		u.IsOnline = false
		u.LastSeen = lastSeen
	})
	return err
}

func (s *BadgerStore) updateUser(id string, mutate func(*models.User)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		user := &models.User{}
		if err := getJSON(txn, userKeyPrefix+id, user); err != nil {
			return err
		}
		mutate(user)
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}
		return txn.Set([]byte(userKeyPrefix+id), data)
	})
}

// -- Rooms --

// CreateRoom persists a room and its membership index entries.
func (s *BadgerStore) CreateRoom(ctx context.Context, room *models.Room) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("create_room", start, err) }()

	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	if room.LastActivity.IsZero() {
		room.LastActivity = now
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		data, marshalErr := json.Marshal(room)
		if marshalErr != nil {
			return fmt.Errorf("marshal room: %w", marshalErr)
		}
		if setErr := txn.Set([]byte(roomKeyPrefix+room.ID), data); setErr != nil {
			return setErr
		}
		for _, member := range room.Members {
			key := []byte(roomMemberKeyPrefix + member + ":" + room.ID)
			if setErr := txn.Set(key, []byte(room.ID)); setErr != nil {
				return setErr
			}
		}
		return nil
	})
	return err
}

// FindRoom returns the room with the given id, or ErrNotFound.
func (s *BadgerStore) FindRoom(ctx context.Context, id string) (room *models.Room, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("find_room", start, err) }()

	room = &models.Room{}
	err = s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roomKeyPrefix+id, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// FindRoomsForUser returns every room the user is a member of, via the
// membership index. This is the durable source the relay's subscription
// table is rebuilt from on every (re)connect.
func (s *BadgerStore) FindRoomsForUser(ctx context.Context, userID string) (rooms []*models.Room, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("find_rooms_for_user", start, err) }()

	err = s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomMemberKeyPrefix + userID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var roomID string
			if valErr := it.Item().Value(func(val []byte) error {
				roomID = string(val)
				return nil
			}); valErr != nil {
				return valErr
			}
			room := &models.Room{}
			if getErr := getJSON(txn, roomKeyPrefix+roomID, room); getErr != nil {
				return getErr
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// UpdateRoomLastMessage advances the room's last-message pointer. Callers
// invoke this after a successful SaveMessage, so pointer order is commit
// order across senders.
func (s *BadgerStore) UpdateRoomLastMessage(ctx context.Context, roomID, messageID string, at time.Time) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("update_room_last_message", start, err) }()

	err = s.db.Update(func(txn *badger.Txn) error {
		room := &models.Room{}
		if getErr := getJSON(txn, roomKeyPrefix+roomID, room); getErr != nil {
			return getErr
		}
		room.LastMessageID = messageID
		room.LastActivity = at
		data, marshalErr := json.Marshal(room)
		if marshalErr != nil {
			return fmt.Errorf("marshal room: %w", marshalErr)
		}
		return txn.Set([]byte(roomKeyPrefix+roomID), data)
	})
	return err
}

// -- Messages --

// SaveMessage persists a message, assigning its ID and commit timestamp.
// The sender is always folded into the read-set.
func (s *BadgerStore) SaveMessage(ctx context.Context, msg *models.Message) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("save_message", start, err) }()

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	if !msg.ReadByUser(msg.SenderID) {
		msg.ReadBy = append(msg.ReadBy, msg.SenderID)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		data, marshalErr := json.Marshal(msg)
		if marshalErr != nil {
			return fmt.Errorf("marshal message: %w", marshalErr)
		}
		if setErr := txn.Set([]byte(messageKeyPrefix+msg.ID), data); setErr != nil {
			return setErr
		}
		indexKey := []byte(roomMessageKey(msg.RoomID, msg.CreatedAt, msg.ID))
		return txn.Set(indexKey, []byte(msg.ID))
	})
	return err
}

// roomMessageKey builds the chronological room index key. Nanoseconds are
// zero-padded so lexicographic key order equals commit order.
func roomMessageKey(roomID string, at time.Time, id string) string {
	return fmt.Sprintf("%s%s:%020d:%s", roomMessageKeyPrefix, roomID, at.UnixNano(), id)
}

// FindMessage returns the message with the given id, or ErrNotFound.
func (s *BadgerStore) FindMessage(ctx context.Context, id string) (msg *models.Message, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("find_message", start, err) }()

	msg = &models.Message{}
	err = s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, messageKeyPrefix+id, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MessagesForRoom returns up to limit messages in the room, newest first,
// strictly older than before (zero value means from the latest).
func (s *BadgerStore) MessagesForRoom(ctx context.Context, roomID string, limit int, before time.Time) (msgs []*models.Message, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("messages_for_room", start, err) }()

	err = s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomMessageKeyPrefix + roomID + ":")

		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse seek lands on the largest key <= the seek target.
		var seek []byte
		if before.IsZero() {
			seek = append(append([]byte{}, prefix...), 0xFF)
		} else {
			seek = []byte(fmt.Sprintf("%s%020d", prefix, before.UnixNano()))
		}

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(msgs) < limit; it.Next() {
			var id string
			if valErr := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); valErr != nil {
				return valErr
			}
			msg := &models.Message{}
			if getErr := getJSON(txn, messageKeyPrefix+id, msg); getErr != nil {
				return getErr
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendReadReceipt adds userID to the message's read-set and returns the
// room the message was committed to. Idempotent: marking the same pair
// twice leaves a set with no duplicates. The read-set only grows; there is
// no removal operation.
func (s *BadgerStore) AppendReadReceipt(ctx context.Context, messageID, userID string) (roomID string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("append_read_receipt", start, err) }()

	err = s.db.Update(func(txn *badger.Txn) error {
		msg := &models.Message{}
		if getErr := getJSON(txn, messageKeyPrefix+messageID, msg); getErr != nil {
			return getErr
		}
		roomID = msg.RoomID
		if msg.ReadByUser(userID) {
			return nil
		}
		msg.ReadBy = append(msg.ReadBy, userID)
		data, marshalErr := json.Marshal(msg)
		if marshalErr != nil {
			return fmt.Errorf("marshal message: %w", marshalErr)
		}
		return txn.Set([]byte(messageKeyPrefix+messageID), data)
	})
	if err != nil {
		return "", err
	}
	return roomID, nil
}

// -- Stickers --

// CreateSticker persists a sticker and its owner (or default) index entry.
func (s *BadgerStore) CreateSticker(ctx context.Context, sticker *models.Sticker) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("create_sticker", start, err) }()

	if sticker.ID == "" {
		sticker.ID = uuid.NewString()
	}
	if sticker.CreatedAt.IsZero() {
		sticker.CreatedAt = time.Now().UTC()
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		data, marshalErr := json.Marshal(sticker)
		if marshalErr != nil {
			return fmt.Errorf("marshal sticker: %w", marshalErr)
		}
		if setErr := txn.Set([]byte(stickerKeyPrefix+sticker.ID), data); setErr != nil {
			return setErr
		}
		var indexKey string
		if sticker.IsDefault || sticker.UserID == "" {
			indexKey = stickerDefaultPrefix + sticker.ID
		} else {
			indexKey = stickerUserPrefix + sticker.UserID + ":" + sticker.ID
		}
		return txn.Set([]byte(indexKey), []byte(sticker.ID))
	})
	return err
}

// ListStickers returns the default stickers plus the user's own.
func (s *BadgerStore) ListStickers(ctx context.Context, userID string) (stickers []*models.Sticker, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOp("list_stickers", start, err) }()

	err = s.db.View(func(txn *badger.Txn) error {
		prefixes := [][]byte{[]byte(stickerDefaultPrefix)}
		if userID != "" {
			prefixes = append(prefixes, []byte(stickerUserPrefix+userID+":"))
		}
		for _, prefix := range prefixes {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var id string
				if valErr := it.Item().Value(func(val []byte) error {
					id = string(val)
					return nil
				}); valErr != nil {
					it.Close()
					return valErr
				}
				sticker := &models.Sticker{}
				if getErr := getJSON(txn, stickerKeyPrefix+id, sticker); getErr != nil {
					it.Close()
					return getErr
				}
				stickers = append(stickers, sticker)
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stickers, nil
}

// getJSON reads a key and unmarshals its value, mapping missing keys to
// ErrNotFound.
func getJSON(txn *badger.Txn, key string, out interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}
