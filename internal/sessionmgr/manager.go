// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sessionmgr is the registry of live PTY sessions: create, attach,
// destroy, and adoption of foreign CLI processes.
package sessionmgr

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rigshell/agentbridge/internal/activity"
	"github.com/rigshell/agentbridge/internal/events"
	"github.com/rigshell/agentbridge/internal/procdetect"
	"github.com/rigshell/agentbridge/internal/ptysession"
)

const adoptWaitDelay = 150 * time.Millisecond

// Manager is the registry of live Sessions, keyed by short id.
type Manager struct {
	binary         string
	binaryOverride string
	bus            events.Bus
	detector       *procdetect.Detector
	activity       *activity.Detector

	mu       sync.RWMutex
	sessions map[string]*ptysession.Session
}

// Config wires a Manager's dependencies.
type Config struct {
	Binary         string
	BinaryOverride string
	Bus            events.Bus
}

// New constructs an empty Manager. The activity detector is best-effort:
// if the current user's home directory cannot be resolved, discovered
// external sessions simply report an unknown activity status.
func New(cfg Config) *Manager {
	m := &Manager{
		binary:         cfg.Binary,
		binaryOverride: cfg.BinaryOverride,
		bus:            cfg.Bus,
		detector:       procdetect.New(cfg.Binary),
		sessions:       make(map[string]*ptysession.Session),
	}
	if det, err := activity.NewDefault(); err == nil {
		m.activity = det
	}
	return m
}

// Create spawns a new session in cwd with the given extra args and, on
// success, registers it under a fresh 8-character id.
func (m *Manager) Create(cwd string, args []string) (*ptysession.Session, error) {
	info, err := os.Stat(cwd)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("sessionmgr: cwd %q is not a directory", cwd)
	}

	id := uuid.New().String()[:8]
	sess := ptysession.New(ptysession.Config{
		ID:             id,
		Cwd:            cwd,
		Binary:         m.binary,
		BinaryOverride: m.binaryOverride,
		Args:           args,
		Bus:            m.bus,
	})

	if err := sess.Start(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	return sess, nil
}

// Get returns the session for id, if managed.
func (m *Manager) Get(id string) (*ptysession.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// List returns a snapshot of every managed session's Info.
func (m *Manager) List() []ptysession.Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ptysession.Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess.Info())
	}
	return out
}

// Destroy stops and unregisters a session. Idempotent.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		sess.Stop(ptysession.DefaultStopTimeout)
	}
}

// DestroyAll stops and unregisters every managed session; used on shutdown.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.Destroy(id)
		}(id)
	}
	wg.Wait()
}

// managedPIDs returns the PIDs of every currently running managed session.
func (m *Manager) managedPIDs() map[int]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int]struct{}, len(m.sessions))
	for _, sess := range m.sessions {
		if pid := sess.Info().PID; pid != 0 {
			out[pid] = struct{}{}
		}
	}
	return out
}

// DiscoverExternal delegates to the Process Detector, excluding managed
// sessions and the server's own PID, then annotates each result with its
// activity status via the Activity Detector. Activity classification is
// advisory and never excludes an otherwise-valid entry.
func (m *Manager) DiscoverExternal() ([]procdetect.External, error) {
	exclude := m.managedPIDs()
	exclude[os.Getpid()] = struct{}{}
	externals, err := m.detector.Discover(exclude)
	if err != nil {
		return nil, err
	}

	if m.activity != nil {
		for i := range externals {
			externals[i].ActivityStatus = string(m.activity.Status(externals[i].Cwd))
		}
	} else {
		for i := range externals {
			externals[i].ActivityStatus = string(activity.StatusUnknown)
		}
	}

	return externals, nil
}

// Adopt validates that (pid, cwd) appear in a fresh discovery snapshot
// (this is what prevents a client from terminating an arbitrary PID),
// terminates the foreign process, and on confirmed death starts a new
// managed session with --continue.
func (m *Manager) Adopt(pid int, cwd string) (*ptysession.Session, error) {
	externals, err := m.DiscoverExternal()
	if err != nil {
		return nil, err
	}

	matched := false
	for _, ext := range externals {
		if ext.PID == pid && ext.Cwd == cwd {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("sessionmgr: (pid=%d, cwd=%q) not found in current discovery snapshot", pid, cwd)
	}

	if err := procdetect.Terminate(pid); err != nil {
		return nil, fmt.Errorf("sessionmgr: terminating pid %d: %w", pid, err)
	}

	time.Sleep(adoptWaitDelay)
	if procdetect.IsAlive(pid) {
		return nil, fmt.Errorf("sessionmgr: pid %d still alive after termination", pid)
	}

	return m.Create(cwd, []string{"--continue"})
}
