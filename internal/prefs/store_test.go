// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigshell/agentbridge/internal/events"
)

func TestOpen_CreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Get().NotificationsEnabled)
	assert.FileExists(t, filepath.Join(dir, fileName))
}

func TestOpen_LoadsExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(`{"notificationsEnabled":false}`), 0644))

	s, err := Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Get().NotificationsEnabled)
}

func TestSet_PersistsAndBroadcasts(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewMemoryBus()
	defer bus.Close()

	received := make(chan events.Event, 1)
	_, err := bus.Subscribe(TypeUpdated, func(_ context.Context, e events.Event) {
		received <- e
	})
	require.NoError(t, err)

	s, err := Open(dir, bus)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(Preferences{NotificationsEnabled: false}))
	assert.False(t, s.Get().NotificationsEnabled)

	select {
	case e := <-received:
		assert.Equal(t, TypeUpdated, e.Type)
	case <-time.After(time.Second):
		t.Fatal("did not receive broadcast")
	}

	data, err := os.ReadFile(filepath.Join(dir, fileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "false")
}
