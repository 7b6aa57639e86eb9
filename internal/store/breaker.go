// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/metrics"
	"github.com/sherchat/relay/internal/models"
)

// BreakerStore wraps a Store with a circuit breaker so a wedged or failing
// backend degrades sends and receipts to fast ErrUnavailable errors instead
// of stacking blocked goroutines behind it.
//
// The breaker uses real time for its recovery window; tests exercise the
// wrapped store directly.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps inner with a circuit breaker configured from cfg.
func NewBreakerStore(inner Store, cfg *config.StoreConfig) *BreakerStore {
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	failureRate := cfg.BreakerFailureRate
	if failureRate <= 0 || failureRate > 1 {
		failureRate = 0.6
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "relay-store",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= failureRate {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Uint32("requests", counts.Requests).
					Msg("store circuit breaker opening")
				return true
			}
			return false
		},

		// Lookup misses and uniqueness conflicts are answers, not backend
		// failures; they must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(breakerStateValue(to))
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state changed")
		},
	})

	return &BreakerStore{inner: inner, cb: cb}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// execute runs op through the breaker, mapping breaker refusals to
// ErrUnavailable.
func (b *BreakerStore) execute(op func() (any, error)) (any, error) {
	result, err := b.cb.Execute(op)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, err
}

func (b *BreakerStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.CreateUser(ctx, user)
	})
	return err
}

func (b *BreakerStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.FindUserByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.User), nil
}

func (b *BreakerStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.FindUserByUsername(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.User), nil
}

func (b *BreakerStore) SearchUsers(ctx context.Context, query string, limit int) ([]*models.User, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.SearchUsers(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.User), nil
}

func (b *BreakerStore) MarkUserOnline(ctx context.Context, id string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.MarkUserOnline(ctx, id)
	})
	return err
}

func (b *BreakerStore) MarkUserOffline(ctx context.Context, id string, lastSeen time.Time) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.MarkUserOffline(ctx, id, lastSeen)
	})
	return err
}

func (b *BreakerStore) CreateRoom(ctx context.Context, room *models.Room) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.CreateRoom(ctx, room)
	})
	return err
}

func (b *BreakerStore) FindRoom(ctx context.Context, id string) (*models.Room, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.FindRoom(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Room), nil
}

func (b *BreakerStore) FindRoomsForUser(ctx context.Context, userID string) ([]*models.Room, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.FindRoomsForUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.Room), nil
}

func (b *BreakerStore) UpdateRoomLastMessage(ctx context.Context, roomID, messageID string, at time.Time) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.UpdateRoomLastMessage(ctx, roomID, messageID, at)
	})
	return err
}

func (b *BreakerStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.SaveMessage(ctx, msg)
	})
	return err
}

func (b *BreakerStore) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.FindMessage(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Message), nil
}

func (b *BreakerStore) MessagesForRoom(ctx context.Context, roomID string, limit int, before time.Time) ([]*models.Message, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.MessagesForRoom(ctx, roomID, limit, before)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.Message), nil
}

func (b *BreakerStore) AppendReadReceipt(ctx context.Context, messageID, userID string) (string, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.AppendReadReceipt(ctx, messageID, userID)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (b *BreakerStore) CreateSticker(ctx context.Context, sticker *models.Sticker) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.CreateSticker(ctx, sticker)
	})
	return err
}

func (b *BreakerStore) ListStickers(ctx context.Context, userID string) ([]*models.Sticker, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.ListStickers(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.Sticker), nil
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}
