// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package supervisor builds the suture v4 supervision tree that runs the
// server's long-lived components.
//
// The tree has three layers under a single root:
//
//   - data: BadgerDB value-log garbage collection
//   - messaging: relay hub and typing sweeper
//   - api: HTTP server
//
// Each layer is its own child supervisor, so a crash loop in one layer is
// isolated from the others. Services are thin wrappers that adapt a
// component's lifecycle to suture's Serve(ctx) contract; the wrappers live
// in the services subpackage.
//
// Suture events are logged through sutureslog, which bridges to the
// zerolog-backed slog handler in internal/logging.
package supervisor
