// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rigshell/agentbridge/internal/events"
)

func newTestSession(t *testing.T, bus events.Bus, args ...string) *Session {
	t.Helper()
	return New(Config{
		ID:     "abc12345",
		Cwd:    t.TempDir(),
		Binary: "sh",
		Args:   args,
		Bus:    bus,
	})
}

func TestSession_StartWriteStop(t *testing.T) {
	bus := events.NewMemoryBus()
	defer bus.Close()

	s := newTestSession(t, bus)
	require.NoError(t, s.Start())
	defer s.Stop(2 * time.Second)

	assert.Equal(t, StatusRunning, s.Info().Status)

	require.NoError(t, s.Write([]byte("echo hello-session\n")))

	deadline := time.After(2 * time.Second)
	for {
		if strings.Contains(string(s.History()), "hello-session") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for output")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSession_StopTerminatesProcess(t *testing.T) {
	s := newTestSession(t, nil, "-c", "sleep 30")
	require.NoError(t, s.Start())

	require.NoError(t, s.Stop(2*time.Second))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not report done after Stop")
	}
	assert.Equal(t, StatusStopped, s.Info().Status)
}

func TestSession_ExitPublishesEvent(t *testing.T) {
	bus := events.NewMemoryBus()
	defer bus.Close()

	exitCh := make(chan events.Event, 1)
	_, err := bus.Subscribe(events.TypeExit, func(_ context.Context, e events.Event) {
		exitCh <- e
	})
	require.NoError(t, err)

	s := newTestSession(t, bus, "-c", "exit 0")
	require.NoError(t, s.Start())

	select {
	case e := <-exitCh:
		assert.Equal(t, events.TypeExit, e.Type)
		assert.Equal(t, s.ID(), e.Payload["sessionId"])
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive exit event")
	}
}

func TestSession_HistoryTrimsToCapacity(t *testing.T) {
	s := newTestSession(t, nil)
	s.status = StatusRunning

	s.appendHistory(make([]byte, historyCap+512))
	assert.Len(t, s.history, historyCap)
}

func TestSession_ActivityStatus(t *testing.T) {
	s := newTestSession(t, nil)

	assert.Equal(t, ActivityIdle, s.ActivityStatus())

	s.status = StatusRunning
	s.lastOutputAt = time.Now()
	assert.Equal(t, ActivityBusy, s.ActivityStatus())

	s.lastOutputAt = time.Now().Add(-busyWindow - time.Second)
	assert.Equal(t, ActivityIdle, s.ActivityStatus())
}

func TestSession_WriteWhenNotRunning(t *testing.T) {
	s := newTestSession(t, nil)
	err := s.Write([]byte("x"))
	assert.Error(t, err)
}

func TestSession_ResizeWhenNotRunningIsNoop(t *testing.T) {
	s := newTestSession(t, nil)
	assert.NoError(t, s.Resize(80, 24))
}

