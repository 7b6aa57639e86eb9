// SherChat - Real-Time Chat Relay
// Copyright 2026 SherChat Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sherchat/relay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sherchat/config.yaml",
	"/etc/sherchat/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are loaded
// first and then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Security: SecurityConfig{
			JWTSecret:            "",
			SessionTimeout:       24 * time.Hour,
			CORSOrigins:          []string{"*"},
			RateLimitReqs:        300,
			RateLimitWindow:      time.Minute,
			LoginRateLimitReqs:   5,
			LoginRateLimitWindow: 5 * time.Minute,
		},
		Store: StoreConfig{
			Path:           "/data/sherchat",
			InMemory:       false,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,

			BreakerEnabled:     true,
			BreakerMinRequests: 10,
			BreakerFailureRate: 0.6,
			BreakerTimeout:     30 * time.Second,
		},
		Presence: PresenceConfig{
			SingleSession: false,
		},
		Typing: TypingConfig{
			TTL:           6 * time.Second,
			SweepInterval: time.Second,
		},
		Relay: RelayConfig{
			SendBuffer:     256,
			MaxMessageSize: 64 * 1024,
			InboundRate:    20,
			InboundBurst:   40,
		},
		Backup: BackupConfig{
			Enabled:  false,
			Dir:      "./backups",
			Interval: 24 * time.Hour,
			Keep:     7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// SECURITY_JWT_SECRET -> security.jwt_secret, SERVER_PORT -> server.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		// Already a slice (from the YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// knownPrefixes maps the leading environment variable segment to a config
// section. Variables outside these prefixes are ignored so unrelated
// environment noise (PATH, HOME, ...) never lands in the config tree.
var knownPrefixes = map[string]string{
	"SERVER":   "server",
	"SECURITY": "security",
	"STORE":    "store",
	"PRESENCE": "presence",
	"TYPING":   "typing",
	"RELAY":    "relay",
	"LOGGING":  "logging",
}

// envTransformFunc maps environment variable names to koanf config paths.
//
//	SERVER_PORT            -> server.port
//	SECURITY_JWT_SECRET    -> security.jwt_secret
//	STORE_GC_INTERVAL      -> store.gc_interval
func envTransformFunc(key string) string {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return ""
	}
	section, ok := knownPrefixes[parts[0]]
	if !ok {
		return ""
	}
	return section + "." + strings.ToLower(parts[1])
}
