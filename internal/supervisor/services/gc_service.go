// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package services

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/sherchat/relay/internal/logging"
)

// ValueLogGC matches *store.BadgerStore's garbage collection method.
type ValueLogGC interface {
	RunGC(discardRatio float64) error
}

// StoreGCService runs Badger value-log garbage collection on a ticker.
//
// Badger requires the application to drive value-log GC; without it the
// value log grows without bound. Each tick runs GC passes until Badger
// reports nothing left to rewrite.
type StoreGCService struct {
	store        ValueLogGC
	interval     time.Duration
	discardRatio float64
	name         string
}

// NewStoreGCService creates a new store GC service wrapper.
func NewStoreGCService(store ValueLogGC, interval time.Duration, discardRatio float64) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &StoreGCService{
		store:        store,
		interval:     interval,
		discardRatio: discardRatio,
		name:         "store-gc",
	}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.collect()
		}
	}
}

// collect runs GC passes until Badger has nothing left to rewrite. A
// successful pass may free up more work, so it loops.
func (s *StoreGCService) collect() {
	for {
		err := s.store.RunGC(s.discardRatio)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			logging.Warn().Err(err).Msg("Value-log GC pass failed")
		}
		return
	}
}

// String implements fmt.Stringer for suture's log messages.
func (s *StoreGCService) String() string {
	return s.name
}
