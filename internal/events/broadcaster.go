// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package events

import (
	"sync"
	"time"
)

// Event represents a build-cycle event pushed to UI subscribers
type Event struct {
	Type      string    `json:"type"` // "build_started", "build_complete", "build_failed", "waiting", "change_detected", "watch_error", "cancelled"
	Timestamp time.Time `json:"timestamp"`
	BuildID   string    `json:"build_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
}

// Broadcaster fans build events out to stream subscribers
type Broadcaster struct {
	subscribers map[chan Event]bool
	mu          sync.RWMutex
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]bool),
	}
}

// Subscribe adds a new subscriber
func (eb *Broadcaster) Subscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[ch] = true
}

// Unsubscribe removes a subscriber
func (eb *Broadcaster) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.subscribers, ch)
	close(ch)
}

// Broadcast sends an event to all subscribers. Slow subscribers are
// skipped, never blocked on.
func (eb *Broadcaster) Broadcast(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Channel is full, skip this subscriber
		}
	}
}

// BuildEvent broadcasts an event tied to a build cycle
func (eb *Broadcaster) BuildEvent(eventType, buildID, message string) {
	eb.Broadcast(Event{
		Type:      eventType,
		Timestamp: time.Now(),
		BuildID:   buildID,
		Message:   message,
	})
}

// ChangeEvent broadcasts a detected file change
func (eb *Broadcaster) ChangeEvent(path, message string) {
	eb.Broadcast(Event{
		Type:      "change_detected",
		Timestamp: time.Now(),
		Path:      path,
		Message:   message,
	})
}

// ErrorEvent broadcasts a failure with its error text
func (eb *Broadcaster) ErrorEvent(eventType, buildID, message string, err error) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		BuildID:   buildID,
		Message:   message,
	}
	if err != nil {
		event.Error = err.Error()
	}
	eb.Broadcast(event)
}
