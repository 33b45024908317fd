// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/continuum/internal/trigger"
)

// ChangeHandler receives translated file system events. The build loop
// swaps in a fresh handler each wait cycle.
type ChangeHandler interface {
	HandleChange(changeType trigger.ChangeType, path string)
	StopWatchingAfterError()
}

// Manager owns the fsnotify watcher for the build's input roots. It
// watches each root recursively, picks up directories created while
// watching, and forwards every raw event to the current handler.
type Manager struct {
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	watched map[string]bool // directories registered with fsnotify
	handler ChangeHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Status represents the current watcher status
type Status struct {
	WatchedDirs int      `json:"watched_dirs"`
	Roots       []string `json:"roots"`
}

// NewManager creates a watcher manager. Call Start before WatchRoots.
func NewManager() (*Manager, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		watcher: watcher,
		watched: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// SetHandler installs the handler that receives events. Events that
// arrive while no handler is installed are dropped.
func (m *Manager) SetHandler(handler ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Start begins processing fsnotify events
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.processEvents()
}

// Stop stops the watcher and waits for the event goroutine
func (m *Manager) Stop() {
	m.cancel()
	if err := m.watcher.Close(); err != nil {
		log.Printf("Error closing watcher: %v", err)
	}
	m.wg.Wait()
}

// WatchRoots registers the given roots (recursively) with fsnotify.
// Roots already watched are kept; a root that is a plain file gets its
// parent directory watched so modifications and replacements are seen.
func (m *Manager) WatchRoots(roots []string) error {
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		if err := m.addRoot(absRoot); err != nil {
			log.Printf("Failed to watch %s: %v", absRoot, err)
			continue
		}
	}
	return nil
}

// Status returns current status
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dirs := make([]string, 0, len(m.watched))
	for dir := range m.watched {
		dirs = append(dirs, dir)
	}
	return Status{
		WatchedDirs: len(m.watched),
		Roots:       dirs,
	}
}

// addRoot adds a directory tree (or a file's parent) to the watcher
func (m *Manager) addRoot(absRoot string) error {
	info, err := os.Stat(absRoot)
	if os.IsNotExist(err) {
		// The root may be created by a future build; watch the nearest
		// existing ancestor so its creation is observed.
		parent := filepath.Dir(absRoot)
		if parent == absRoot {
			return fmt.Errorf("no existing ancestor for %s", absRoot)
		}
		return m.addRoot(parent)
	}
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}

	if !info.IsDir() {
		return m.watchDir(filepath.Dir(absRoot))
	}

	return filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := m.watchDir(path); err != nil {
				log.Printf("Warning: failed to watch %s: %v", path, err)
			}
		}
		return nil
	})
}

// watchDir registers a single directory, once
func (m *Manager) watchDir(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watched[dir] {
		return nil
	}
	if err := m.watcher.Add(dir); err != nil {
		return err
	}
	m.watched[dir] = true
	return nil
}

// processEvents translates fsnotify events and forwards them
func (m *Manager) processEvents() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
			m.mu.RLock()
			handler := m.handler
			m.mu.RUnlock()
			if handler != nil {
				handler.StopWatchingAfterError()
			}
		}
	}
}

// handleEvent maps an fsnotify op onto a change type and forwards it.
// Chmod-only events are dropped; they carry no content change.
func (m *Manager) handleEvent(event fsnotify.Event) {
	var changeType trigger.ChangeType
	switch {
	case event.Op&fsnotify.Create != 0:
		changeType = trigger.Created
		// New directories under a watched tree must be watched too,
		// before anything inside them changes.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := m.watchDir(event.Name); err != nil {
				log.Printf("Failed to watch new directory %s: %v", event.Name, err)
			}
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		changeType = trigger.Removed
		m.mu.Lock()
		delete(m.watched, event.Name)
		m.mu.Unlock()
	case event.Op&fsnotify.Write != 0:
		changeType = trigger.Modified
	default:
		return
	}

	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()
	if handler != nil {
		handler.HandleChange(changeType, event.Name)
	}
}
