// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package trigger

import (
	"fmt"
	"os"
	"sync"
)

// ChangeType classifies a raw file system change.
type ChangeType int

const (
	Created ChangeType = iota
	Modified
	Removed
)

func (t ChangeType) String() string {
	switch t {
	case Created:
		return "created"
	case Removed:
		return "removed"
	default:
		return "modified"
	}
}

// showIndividualChangesLimit caps how many distinct paths are reported
// in detail; everything beyond it is summarized in a single line.
const showIndividualChangesLimit = 3

// EventCollector aggregates a burst of relevant file changes into a
// short, ordered summary for the rebuild report. Redundant events for
// a path are collapsed; creating then modifying a file is still "new".
// A fresh collector is built for every wait cycle.
type EventCollector struct {
	mu                sync.Mutex
	order             []string
	aggregated        map[string]ChangeType
	moreChangesCount  int
	errorWhenWatching bool
}

// NewEventCollector creates an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{
		aggregated: make(map[string]ChangeType),
	}
}

// OnChange records a change for path. Safe to call from watcher
// goroutines concurrently with an in-progress wait.
func (c *EventCollector) OnChange(changeType ChangeType, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, tracked := c.aggregated[path]
	if tracked && (existing == changeType || (existing == Created && changeType == Modified)) {
		// Redundant: same event again, or a modification of a file
		// the user will already see reported as new.
		return
	}

	if tracked {
		c.aggregated[path] = changeType
		return
	}
	if len(c.order) < showIndividualChangesLimit {
		c.order = append(c.order, path)
		c.aggregated[path] = changeType
		return
	}
	c.moreChangesCount++
}

// ErrorWhenWatching marks that the watch subsystem failed. The flag is
// sticky and independent of path-level tracking.
func (c *EventCollector) ErrorWhenWatching() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorWhenWatching = true
}

// Report returns one line per tracked path in first-seen order,
// followed by an overflow line and the watch error line when relevant.
// Reporting does not mutate collector state.
func (c *EventCollector) Report() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]string, 0, len(c.order)+2)
	for _, path := range c.order {
		lines = append(lines, describeChange(c.aggregated[path], path))
	}
	if c.moreChangesCount > 0 {
		lines = append(lines, "and some more changes")
	}
	if c.errorWhenWatching {
		lines = append(lines, "Error when watching files - triggering a rebuild")
	}
	return lines
}

func describeChange(changeType ChangeType, path string) string {
	var description string
	switch changeType {
	case Created:
		// Stat at report time; a path that vanished again reads as a file.
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			description = "new directory"
		} else {
			description = "new file"
		}
	case Removed:
		description = "deleted"
	default:
		description = "modified"
	}
	return fmt.Sprintf("%s: %s", description, path)
}
