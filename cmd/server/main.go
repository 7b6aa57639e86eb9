// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package main is the entry point for the SherChat relay server.
//
// SherChat is a self-hosted real-time chat server: REST endpoints for
// accounts, rooms, and history, plus a websocket relay for live message
// fan-out, presence, typing indicators, and read receipts.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: settings from environment variables and config files (Koanf v2)
//  2. Store: BadgerDB persistence, optionally wrapped in a circuit breaker
//  3. Auth: JWT token manager and credential checks
//  4. Relay: websocket hub, presence registry, typing tracker
//  5. HTTP server: Chi router with REST API, websocket endpoint, and metrics
//
// All long-lived components run under a suture supervision tree so a
// crashed component restarts without taking the process down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, then an optional config.yaml,
// then built-in defaults. The only required setting is the token secret:
//
//	export SECURITY_JWT_SECRET=$(openssl rand -base64 32)
//	export STORE_PATH=/var/lib/sherchat
//	./sherchat
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the listener
// stops accepting connections, in-flight requests get 10 seconds to
// complete, websocket clients are closed, and the store is flushed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sherchat/relay/internal/api"
	"github.com/sherchat/relay/internal/auth"
	"github.com/sherchat/relay/internal/backup"
	"github.com/sherchat/relay/internal/config"
	"github.com/sherchat/relay/internal/logging"
	"github.com/sherchat/relay/internal/relay"
	"github.com/sherchat/relay/internal/store"
	"github.com/sherchat/relay/internal/supervisor"
	"github.com/sherchat/relay/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet, so this uses the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("environment", cfg.Server.Environment).
		Bool("store_in_memory", cfg.Store.InMemory).
		Msg("Starting SherChat relay")

	badgerStore, err := store.Open(store.Options{
		Path:     cfg.Store.Path,
		InMemory: cfg.Store.InMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := badgerStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	var st store.Store = badgerStore
	if cfg.Store.BreakerEnabled {
		st = store.NewBreakerStore(badgerStore, &cfg.Store)
		logging.Info().Msg("Store circuit breaker enabled")
	}

	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token manager")
	}
	authenticator := auth.NewAuthenticator(jwt, st)

	rl := relay.New(st, cfg)

	handler := api.NewHandler(st, authenticator, jwt, rl, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(&cfg.Security), authenticator)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build supervisor tree")
	}

	if !cfg.Store.InMemory {
		tree.AddDataService(services.NewStoreGCService(badgerStore, cfg.Store.GCInterval, cfg.Store.GCDiscardRatio))
	}
	if cfg.Backup.Enabled {
		tree.AddDataService(backup.NewManager(badgerStore, &cfg.Backup))
		logging.Info().
			Str("dir", cfg.Backup.Dir).
			Dur("interval", cfg.Backup.Interval).
			Msg("Scheduled store snapshots enabled")
	}
	tree.AddMessagingService(services.NewHubService(rl.Hub()))
	tree.AddMessagingService(services.NewTypingSweeperService(rl.Typing()))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Relay stopped gracefully")
}
