// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package backup

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/models"
	"github.com/sherchat/relay/internal/store"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

func newTestManager(t *testing.T, keep int) (*Manager, *store.BadgerStore) {
	t.Helper()

	s, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cfg := &config.BackupConfig{
		Enabled:  true,
		Dir:      t.TempDir(),
		Interval: time.Hour,
		Keep:     keep,
	}
	return NewManager(s, cfg), s
}

func TestCreateWritesSnapshot(t *testing.T) {
	m, s := newTestManager(t, 3)

	err := s.CreateUser(context.Background(), &models.User{Username: "alice", PasswordHash: "x"})
	require.NoError(t, err)

	snap, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Greater(t, snap.Size, int64(0))
	assert.FileExists(t, snap.Path)

	snaps, err := m.List()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snap.Path, snaps[0].Path)
}

func TestListNewestFirst(t *testing.T) {
	m, _ := newTestManager(t, 10)

	// Snapshot names carry second resolution, so force distinct stamps.
	_, err := m.Create(context.Background())
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	second, err := m.Create(context.Background())
	require.NoError(t, err)

	snaps, err := m.List()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, second.Path, snaps[0].Path)
	assert.True(t, snaps[0].CreatedAt.After(snaps[1].CreatedAt))
}

func TestRetentionKeepsNewest(t *testing.T) {
	m, _ := newTestManager(t, 2)

	var last *Snapshot
	for i := 0; i < 3; i++ {
		var err error
		last, err = m.Create(context.Background())
		require.NoError(t, err)
		time.Sleep(1100 * time.Millisecond)
	}

	snaps, err := m.List()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, last.Path, snaps[0].Path)
}

func TestListEmptyDir(t *testing.T) {
	s, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	m := NewManager(s, &config.BackupConfig{Dir: "/nonexistent/backup/dir", Keep: 1})
	snaps, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestCreateCanceledContext(t *testing.T) {
	m, _ := newTestManager(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Create(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
