// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package models

import "time"

// APIResponse is the envelope for all HTTP API responses.
//
// Example success:
//
//	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
//
// Example error:
//
//	{"status": "error", "error": {"code": "VALIDATION_ERROR", "message": "..."}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError is a structured error body.
//
// Common codes: VALIDATION_ERROR, AUTHENTICATION_ERROR, NOT_FOUND,
// CONFLICT, STORE_ERROR, RATE_LIMIT_EXCEEDED.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
