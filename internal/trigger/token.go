// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package trigger

import "sync"

// CancellationToken is a one-shot cancellation flag shared between the
// build loop, the signal handler, and an in-progress wait. Callbacks
// registered before cancellation fire exactly once, from the goroutine
// that calls Cancel; a callback registered after cancellation fires
// immediately.
type CancellationToken struct {
	mu        sync.Mutex
	cancelled bool
	nextID    int
	callbacks map[int]func()
}

// NewCancellationToken creates an uncancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{
		callbacks: make(map[int]func()),
	}
}

// Requested reports whether Cancel has been called.
func (t *CancellationToken) Requested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// AddCallback registers fn to run when cancellation is requested and
// returns a handle for RemoveCallback. If the token is already
// cancelled, fn runs synchronously before AddCallback returns.
func (t *CancellationToken) AddCallback(fn func()) int {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return -1
	}
	id := t.nextID
	t.nextID++
	t.callbacks[id] = fn
	t.mu.Unlock()
	return id
}

// RemoveCallback unregisters a callback. Removing an unknown or
// already-fired handle is a no-op.
func (t *CancellationToken) RemoveCallback(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.callbacks, id)
}

// Cancel requests cancellation and runs all registered callbacks.
// Subsequent calls are no-ops.
func (t *CancellationToken) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	fired := make([]func(), 0, len(t.callbacks))
	for _, fn := range t.callbacks {
		fired = append(fired, fn)
	}
	t.callbacks = make(map[int]func())
	t.mu.Unlock()

	for _, fn := range fired {
		fn()
	}
}
