// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package trigger

import (
	"path/filepath"
	"sort"
	"strings"
)

// RootSet is an immutable set of absolute path roots. A path is a
// member if it equals a root or lies anywhere under one. Snapshots are
// cheap to share; Append returns a new snapshot and never mutates the
// receiver.
type RootSet struct {
	roots []string // sorted, no root is a descendant of another
}

// EmptyRootSet returns the pristine snapshot with no roots. A listener
// holding an empty set has never seen a completed build and cannot
// filter events.
func EmptyRootSet() RootSet {
	return RootSet{}
}

// Empty reports whether no roots are tracked.
func (s RootSet) Empty() bool {
	return len(s.roots) == 0
}

// Len returns the number of tracked roots.
func (s RootSet) Len() int {
	return len(s.roots)
}

// Roots returns a copy of the tracked roots in sorted order.
func (s RootSet) Roots() []string {
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	return out
}

// Append returns a snapshot that also covers path. Adding a path
// already covered by an existing root is a no-op and returns the
// receiver unchanged; adding an ancestor of existing roots absorbs
// them.
func (s RootSet) Append(path string) RootSet {
	root := filepath.Clean(path)
	if s.Contains(root) {
		return s
	}

	merged := make([]string, 0, len(s.roots)+1)
	for _, existing := range s.roots {
		if !isUnder(root, existing) {
			merged = append(merged, existing)
		}
	}
	merged = append(merged, root)
	sort.Strings(merged)
	return RootSet{roots: merged}
}

// Contains reports whether path equals a tracked root or lies under
// one. Each ancestor of the path is probed with a binary search, so
// the cost is O(depth * log n) rather than a scan over every root.
func (s RootSet) Contains(path string) bool {
	if len(s.roots) == 0 {
		return false
	}

	candidate := filepath.Clean(path)
	for {
		i := sort.SearchStrings(s.roots, candidate)
		if i < len(s.roots) && s.roots[i] == candidate {
			return true
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return false
		}
		candidate = parent
	}
}

// isUnder reports whether path is root itself or a descendant of root.
func isUnder(root, path string) bool {
	if path == root {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	rest := path[len(root):]
	return strings.HasPrefix(rest, string(filepath.Separator)) || root == string(filepath.Separator)
}
