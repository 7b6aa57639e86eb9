// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package services contains suture.Service wrappers for the server's
// long-lived components.
//
// Each wrapper adapts one component to suture's Serve(ctx) contract and
// depends on a small local interface rather than the concrete package, so
// the wrappers stay free of import cycles and are trivial to test with
// fakes:
//
//   - HTTPServerService: net/http server with graceful Shutdown
//   - HubService: relay hub (RunWithContext)
//   - TypingSweeperService: typing TTL sweeper (Serve)
//   - StoreGCService: periodic Badger value-log garbage collection
package services
