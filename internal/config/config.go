// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

// Package config holds all application configuration, loaded with Koanf v2
// from layered sources (highest priority wins):
//
//  1. Environment variables (SERVER_PORT, SECURITY_JWT_SECRET, ...)
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Built-in defaults
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the relay server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Presence PresenceConfig `koanf:"presence"`
	Typing   TypingConfig   `koanf:"typing"`
	Relay    RelayConfig    `koanf:"relay"`
	Backup   BackupConfig   `koanf:"backup"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development or production
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SecurityConfig holds authentication and transport-security settings.
type SecurityConfig struct {
	// JWTSecret signs connection tokens (HS256). Must be at least 32
	// characters in production.
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs/RateLimitWindow bound authenticated API requests per IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// LoginRateLimitReqs/Window bound login attempts per IP (brute force).
	LoginRateLimitReqs   int           `koanf:"login_rate_limit_reqs"`
	LoginRateLimitWindow time.Duration `koanf:"login_rate_limit_window"`
}

// StoreConfig holds BadgerDB persistence settings.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// GCInterval/GCDiscardRatio drive the value-log garbage collection loop.
	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio"`

	// Breaker wraps store operations in a circuit breaker so a wedged disk
	// degrades sends to fast errors instead of piling up goroutines.
	BreakerEnabled     bool          `koanf:"breaker_enabled"`
	BreakerMinRequests uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRate float64       `koanf:"breaker_failure_rate"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// PresenceConfig controls multi-device presence behavior.
type PresenceConfig struct {
	// SingleSession evicts a user's previous connections when a new one is
	// admitted. Default false: presence is refcounted across devices and a
	// user goes offline only when the last connection closes.
	SingleSession bool `koanf:"single_session"`
}

// TypingConfig controls the typing-indicator safety net.
type TypingConfig struct {
	// TTL is how long a typing indicator stays live without a refresh before
	// the sweeper emits a synthetic stop.
	TTL time.Duration `koanf:"ttl"`

	// SweepInterval is how often expired indicators are collected.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RelayConfig holds connection and fan-out tuning.
type RelayConfig struct {
	// SendBuffer is the per-connection outbound queue length. A connection
	// that falls this far behind is dropped rather than allowed to block
	// delivery to its siblings.
	SendBuffer int `koanf:"send_buffer"`

	// MaxMessageSize bounds a single inbound websocket frame in bytes.
	MaxMessageSize int64 `koanf:"max_message_size"`

	// InboundRate/InboundBurst bound events per second per connection.
	InboundRate  float64 `koanf:"inbound_rate"`
	InboundBurst int     `koanf:"inbound_burst"`
}

// BackupConfig holds scheduled store snapshot settings.
type BackupConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`

	// Interval is the time between scheduled snapshots.
	Interval time.Duration `koanf:"interval"`

	// Keep is how many snapshots the retention pass preserves.
	Keep int `koanf:"keep"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("server.environment must be development or production, got %q", c.Server.Environment)
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if c.Server.Environment == "production" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters in production")
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("security.session_timeout must be positive")
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	if c.Store.GCDiscardRatio <= 0 || c.Store.GCDiscardRatio >= 1 {
		return fmt.Errorf("store.gc_discard_ratio must be in (0,1), got %v", c.Store.GCDiscardRatio)
	}
	if c.Typing.TTL <= 0 {
		return fmt.Errorf("typing.ttl must be positive")
	}
	if c.Typing.SweepInterval <= 0 {
		return fmt.Errorf("typing.sweep_interval must be positive")
	}
	if c.Relay.SendBuffer < 1 {
		return fmt.Errorf("relay.send_buffer must be at least 1")
	}
	if c.Relay.InboundRate <= 0 {
		return fmt.Errorf("relay.inbound_rate must be positive")
	}
	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir is required when backup.enabled is set")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be positive")
		}
		if c.Backup.Keep < 1 {
			return fmt.Errorf("backup.keep must be at least 1")
		}
	}
	return nil
}
