// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package metrics registers the Prometheus collectors for the relay:
// connection/presence gauges, the message pipeline, fan-out drops, store
// operation latency, and the HTTP surface. Exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection and presence

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_ws_connections",
			Help: "Current number of live websocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_online_users",
			Help: "Current number of users with at least one live connection",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Total connection admissions refused",
		},
		[]string{"reason"}, // missing_token, invalid_token, unknown_user
	)

	// Message pipeline

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_sent_total",
			Help: "Total messages persisted and broadcast",
		},
		[]string{"kind"},
	)

	MessageSendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_message_send_errors_total",
			Help: "Total message sends that failed before broadcast",
		},
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_read_receipts_total",
			Help: "Total read receipts recorded and broadcast",
		},
	)

	TypingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_typing_events_total",
			Help: "Total typing indicator events relayed",
		},
		[]string{"state"}, // start, stop, expired
	)

	// Fan-out

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broadcast_dropped_total",
			Help: "Total per-connection deliveries dropped due to a full or closed send queue",
		},
	)

	BroadcastQueueWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broadcast_queue_waits_total",
			Help: "Total room broadcasts that found the fan-out queue full and had to wait",
		},
	)

	// Store adapter

	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_store_op_duration_seconds",
			Help:    "Duration of store adapter operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_store_op_errors_total",
			Help: "Total store adapter operation failures",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_store_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// HTTP surface

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveStoreOp records the duration and outcome of one store operation.
func ObserveStoreOp(operation string, start time.Time, err error) {
	StoreOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreOpErrors.WithLabelValues(operation).Inc()
	}
}
