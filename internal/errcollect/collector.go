// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package errcollect

import "sync"

// Collector decorates operations so their errors are captured instead
// of propagated. Used for user-supplied hooks whose failures should be
// reported at the end of a cycle rather than abort it.
type Collector interface {
	Add(err error)
	Errors() []error
	Wrap(op func() error) func() error
	Reset()
}

// New returns a collecting implementation.
func New() Collector {
	return &collector{}
}

// Noop returns a pass-through implementation: Wrap returns the
// operation unchanged and nothing is collected.
func Noop() Collector {
	return noopCollector{}
}

type collector struct {
	mu     sync.Mutex
	errors []error
}

func (c *collector) Add(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *collector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errors))
	copy(out, c.errors)
	return out
}

func (c *collector) Wrap(op func() error) func() error {
	return func() error {
		if err := op(); err != nil {
			c.Add(err)
		}
		return nil
	}
}

func (c *collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = nil
}

type noopCollector struct{}

func (noopCollector) Add(error)                         {}
func (noopCollector) Errors() []error                   { return nil }
func (noopCollector) Wrap(op func() error) func() error { return op }
func (noopCollector) Reset()                            {}
