// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// mockService is a controllable suture.Service for supervisor tests.
type mockService struct {
	name       string
	startCount atomic.Int32
	failCount  atomic.Int32
	maxFails   int32
	err        error
	mu         sync.Mutex
}

func newMockService(name string) *mockService {
	return &mockService{name: name}
}

func (m *mockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)

	m.mu.Lock()
	err := m.err
	maxFails := m.maxFails
	m.mu.Unlock()

	if maxFails > 0 {
		if current := m.failCount.Add(1); current <= maxFails {
			return errors.New("simulated failure")
		}
	}
	if err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

// SetFailCount makes the next n Serve calls fail before succeeding.
func (m *mockService) SetFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFails = int32(n)
}

func (m *mockService) StartCount() int32 {
	return m.startCount.Load()
}

func (m *mockService) String() string {
	return m.name
}
