// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Fingerprint summarizes the current state of one task's declared
// input roots: a content hash per root. The root paths feed the
// change listener's input set; the combined hash feeds the build
// cache.
type Fingerprint struct {
	taskName   string
	rootHashes map[string]string
}

// TaskName returns the task this fingerprint was taken for.
func (f Fingerprint) TaskName() string {
	return f.taskName
}

// RootPaths returns the absolute root paths in sorted order.
func (f Fingerprint) RootPaths() []string {
	roots := make([]string, 0, len(f.rootHashes))
	for root := range f.rootHashes {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// RootHash returns the content hash recorded for root, if present.
func (f Fingerprint) RootHash(root string) (string, bool) {
	hash, ok := f.rootHashes[root]
	return hash, ok
}

// CombinedHash folds the per-root hashes into one stable identity for
// the whole input set. Equal inputs produce equal combined hashes
// regardless of map iteration order.
func (f Fingerprint) CombinedHash() string {
	h := sha256.New()
	for _, root := range f.RootPaths() {
		fmt.Fprintf(h, "%s\x00%s\x00", root, f.rootHashes[root])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Snapshot fingerprints the given roots for a task. Roots are resolved
// to absolute paths; a root that does not exist on disk is still
// recorded (with a marker hash) so the listener watches for its
// creation.
func Snapshot(taskName string, roots []string) (Fingerprint, error) {
	rootHashes := make(map[string]string, len(roots))
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("failed to resolve root %s: %w", root, err)
		}
		hash, err := hashTree(absRoot)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("failed to fingerprint %s: %w", absRoot, err)
		}
		rootHashes[absRoot] = hash
	}
	return Fingerprint{taskName: taskName, rootHashes: rootHashes}, nil
}

// hashTree hashes a file's content, or a directory's relative paths
// and contents walked in sorted order. A missing root hashes to a
// fixed marker so its later creation shows up as a change.
func hashTree(root string) (string, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return "missing", nil
	}
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if !info.IsDir() {
		if err := hashFileInto(h, root); err != nil {
			return "", err
		}
		return fmt.Sprintf("%x", h.Sum(nil)), nil
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Entries that vanish mid-walk are treated as absent.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\x00", rel)
		return hashFileInto(h, path)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func hashFileInto(h io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return err
	}
	return nil
}
