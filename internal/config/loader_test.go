// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AGENTBRIDGE_REMOTE_TOKEN", "")
	t.Setenv("AGENTBRIDGE_PATH", "")
	t.Setenv("PORT", "")
	t.Setenv("DEV_MODE", "")

	cfg, err := NewLoader().Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Server.Port)
	assert.Equal(t, "claude", cfg.Agent.Binary)
	assert.Equal(t, defaultRetentionDays, cfg.Scheduler.RetentionDays)
	assert.NotEmpty(t, cfg.StateDir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AGENTBRIDGE_REMOTE_TOKEN", "sekrit")
	t.Setenv("AGENTBRIDGE_PATH", "/opt/claude")
	t.Setenv("PORT", "9999")
	t.Setenv("DEV_MODE", "1")

	cfg, err := NewLoader().Load("")
	require.NoError(t, err)

	assert.Equal(t, "sekrit", cfg.Auth.TokenOverride)
	assert.Equal(t, "/opt/claude", cfg.Agent.PathOverride)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.True(t, cfg.Server.DevMode)
}

func TestLoad_FileThenEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentbridge.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":4000},"agent":{"binary":"mycli"}}`), 0644))

	t.Setenv("PORT", "")
	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "mycli", cfg.Agent.Binary)

	t.Setenv("PORT", "5000")
	cfg, err = NewLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, filepath.Join(home, "repo"), ExpandHome("~/repo"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
}

func TestRetentionDuration(t *testing.T) {
	c := SchedulerConfig{RetentionDays: 7}
	assert.Equal(t, 7*24*60*60*1e9, float64(c.RetentionDuration()))
}
