// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads server configuration from an optional JSON file and
// layers environment variable overrides on top of defaults (see DESIGN.md
// for why this uses plain JSON rather than a comment-preserving format).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the fully-resolved server configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Agent     AgentConfig     `json:"agent"`
	Auth      AuthConfig      `json:"auth"`
	StateDir  string          `json:"stateDir"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Tunnel    TunnelConfig    `json:"tunnel"`
}

// ServerConfig holds HTTP listen settings.
type ServerConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DevMode bool   `json:"devMode"`
}

// AgentConfig describes the managed CLI binary.
type AgentConfig struct {
	// Binary is the executable name resolved by internal/binresolve
	// (explicit override env var -> PATH -> fixed fallback list).
	Binary string `json:"binary"`
	// PathOverride, when set, must point at an existing file or
	// resolution fails loudly rather than falling through.
	PathOverride string `json:"-"`
}

// AuthConfig holds the shared bearer token configuration.
type AuthConfig struct {
	// TokenOverride, when set, is used verbatim instead of generating a
	// random token at startup.
	TokenOverride string `json:"-"`
}

// SchedulerConfig configures run-log retention.
type SchedulerConfig struct {
	RetentionDays int `json:"retentionDays"`
}

// TunnelConfig configures the optional tunnel subprocess (internal/tunnel).
type TunnelConfig struct {
	Command []string `json:"command"`
}

const (
	defaultPort          = 3456
	defaultRetentionDays = 7
)

// Loader reads the optional JSON config file and applies defaults plus
// environment overrides.
type Loader struct{}

// NewLoader creates a config loader.
func NewLoader() *Loader { return &Loader{} }

// Load reads path (if non-empty and present), applies defaults, then layers
// environment variable overrides: <BINARY>_REMOTE_TOKEN, <BINARY>_PATH,
// PORT, DEV_MODE, HOME.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	return cfg, nil
}

// FindConfig looks for agentbridge.json in the current directory. Returns
// "" with no error if absent; an explicit config file is optional since all
// settings have defaults and env overrides.
func (l *Loader) FindConfig() (string, error) {
	path := filepath.Join(".", "agentbridge.json")
	if _, err := os.Stat(path); err == nil {
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}
	return "", nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Agent.Binary == "" {
		cfg.Agent.Binary = "claude"
	}
	if cfg.Scheduler.RetentionDays == 0 {
		cfg.Scheduler.RetentionDays = defaultRetentionDays
	}
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.StateDir = filepath.Join(home, ".agentbridge")
		} else {
			cfg.StateDir = ".agentbridge"
		}
	}
}

func applyEnv(cfg *Config) {
	const envPrefix = "AGENTBRIDGE"

	if tok := os.Getenv(envPrefix + "_REMOTE_TOKEN"); tok != "" {
		cfg.Auth.TokenOverride = tok
	}
	if p := os.Getenv(envPrefix + "_PATH"); p != "" {
		cfg.Agent.PathOverride = p
	}
	if port := os.Getenv("PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
	if os.Getenv("DEV_MODE") != "" {
		cfg.Server.DevMode = true
	}
}

// RetentionDuration converts the configured day count to a time.Duration.
func (c SchedulerConfig) RetentionDuration() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// ExpandHome expands a leading "~" or "~/" against HOME — the child process
// inherits no shell to do it itself.
func ExpandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
