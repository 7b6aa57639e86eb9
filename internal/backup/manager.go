// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package backup provides scheduled snapshots of the Badger store.
//
// A snapshot is Badger's own backup stream, gzip-compressed, written to a
// timestamped file in the configured directory. A retention pass after each
// snapshot keeps the newest N files and deletes the rest. Snapshots are
// full, not incremental; restore is `badger restore` or DB.Load against the
// decompressed stream.
package backup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/logging"
)

const (
	snapshotPrefix = "sherchat-"
	snapshotSuffix = ".badger.gz"
	timeLayout     = "20060102T150405"
)

// Source is the store side of a snapshot. Satisfied by *store.BadgerStore.
type Source interface {
	Backup(w io.Writer, since uint64) (uint64, error)
}

// Snapshot describes one completed backup file.
type Snapshot struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manager creates store snapshots and enforces retention.
//
// Create is serialized with a mutex; overlapping scheduled and manual
// snapshots would otherwise interleave writes into the same directory scan.
type Manager struct {
	source Source
	cfg    *config.BackupConfig
	mu     sync.Mutex
}

// NewManager creates a backup manager. The backup directory is created on
// first use.
func NewManager(source Source, cfg *config.BackupConfig) *Manager {
	return &Manager{source: source, cfg: cfg}
}

// Create writes one snapshot and runs the retention pass.
func (m *Manager) Create(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}

	now := time.Now().UTC()
	name := snapshotPrefix + now.Format(timeLayout) + snapshotSuffix
	path := filepath.Join(m.cfg.Dir, name)

	// Write to a temp name first so a crashed snapshot never looks complete.
	tmp := path + ".tmp"
	if err := m.writeSnapshot(tmp); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	if err := m.prune(); err != nil {
		logging.Warn().Err(err).Msg("Backup retention pass failed")
	}

	return &Snapshot{Path: path, Size: info.Size(), CreatedAt: now}, nil
}

func (m *Manager) writeSnapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	gz := gzip.NewWriter(f)
	if _, err := m.source.Backup(gz, 0); err != nil {
		_ = gz.Close()
		_ = f.Close()
		return fmt.Errorf("store backup stream failed: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	return nil
}

// List returns completed snapshots, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup dir: %w", err)
	}

	var snaps []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
		created, err := time.Parse(timeLayout, stamp)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			Path:      filepath.Join(m.cfg.Dir, name),
			Size:      info.Size(),
			CreatedAt: created.UTC(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// prune deletes everything past the newest Keep snapshots.
func (m *Manager) prune() error {
	snaps, err := m.List()
	if err != nil {
		return err
	}
	if m.cfg.Keep < 1 || len(snaps) <= m.cfg.Keep {
		return nil
	}
	for _, snap := range snaps[m.cfg.Keep:] {
		if err := os.Remove(snap.Path); err != nil {
			return fmt.Errorf("failed to remove expired snapshot: %w", err)
		}
		logging.Debug().Str("path", snap.Path).Msg("Expired snapshot removed")
	}
	return nil
}

// Serve runs scheduled snapshots until the context is canceled. It
// implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap, err := m.Create(ctx)
			if err != nil {
				logging.Error().Err(err).Msg("Scheduled snapshot failed")
				continue
			}
			logging.Info().
				Str("path", snap.Path).
				Int64("size", snap.Size).
				Msg("Store snapshot written")
		}
	}
}

// String implements fmt.Stringer for suture's log messages.
func (m *Manager) String() string {
	return "store-backup"
}
