// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package prefs persists the small notification preference as JSON in the
// install dot-directory and watches it for external edits.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/rigshell/agentbridge/internal/events"
)

const fileName = "preferences.json"

const TypeUpdated = "preferences:updated"

// Preferences is the persisted shape of the notification setting.
type Preferences struct {
	NotificationsEnabled bool `json:"notificationsEnabled"`
}

// defaultPreferences matches the zero value a fresh install starts from.
var defaultPreferences = Preferences{NotificationsEnabled: false}

// Store owns the on-disk preferences file and broadcasts changes.
type Store struct {
	path string
	bus  events.Bus

	mu      sync.RWMutex
	current Preferences

	watcher *fsnotify.Watcher
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Open loads (or initializes) the preferences file under dir and starts
// watching it for external edits.
func Open(dir string, bus events.Bus) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("prefs: creating %s: %w", dir, err)
	}

	s := &Store{
		path:    filepath.Join(dir, fileName),
		bus:     bus,
		current: defaultPreferences,
		closeCh: make(chan struct{}),
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := s.persist(defaultPreferences); err != nil {
			return nil, err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("prefs: creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("prefs: watching %s: %w", dir, err)
	}
	s.watcher = watcher

	s.wg.Add(1)
	go s.watch()

	return s, nil
}

// Get returns the current preferences.
func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set updates and persists the preferences, then broadcasts the change.
func (s *Store) Set(p Preferences) error {
	if err := s.persist(p); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	s.broadcast(p)
	return nil
}

// Close stops the file watcher.
func (s *Store) Close() {
	select {
	case <-s.closeCh:
		return
	default:
		close(s.closeCh)
	}
	s.watcher.Close()
	s.wg.Wait()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("prefs: parsing %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	return nil
}

func (s *Store) persist(p Preferences) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("prefs: marshaling: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("prefs: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("prefs: renaming %s: %w", tmp, err)
	}
	return nil
}

func (s *Store) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.closeCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.load(); err == nil {
				s.broadcast(s.Get())
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Store) broadcast(p Preferences) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(context.Background(), events.Event{
		Type:    TypeUpdated,
		Payload: map[string]interface{}{"preferences": p},
	})
}
