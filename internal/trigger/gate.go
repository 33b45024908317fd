// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package trigger

import (
	"context"
	"sync"
)

// ExecutionGate delays the release of a build trigger independent of
// the debounce logic. The gate starts open; a collaborator (the web
// API, a test) may close it to hold settled triggers back and open it
// to release them.
type ExecutionGate struct {
	mu     sync.Mutex
	open   bool
	opened chan struct{} // closed while the gate is open
}

// NewExecutionGate creates an open gate.
func NewExecutionGate() *ExecutionGate {
	g := &ExecutionGate{
		open:   true,
		opened: make(chan struct{}),
	}
	close(g.opened)
	return g
}

// Open releases all waiters. Opening an open gate is a no-op.
func (g *ExecutionGate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.open = true
		close(g.opened)
	}
}

// Close makes subsequent WaitForOpen calls block. Closing a closed
// gate is a no-op.
func (g *ExecutionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.open = false
		g.opened = make(chan struct{})
	}
}

// IsOpen reports the current gate state.
func (g *ExecutionGate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// WaitForOpen blocks until the gate is open or ctx is done. A context
// error here means the wait was interrupted, not that the gate closed.
func (g *ExecutionGate) WaitForOpen(ctx context.Context) error {
	g.mu.Lock()
	opened := g.opened
	g.mu.Unlock()

	select {
	case <-opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
