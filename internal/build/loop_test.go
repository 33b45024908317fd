// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/continuum/internal/config"
	"github.com/continuum/internal/errcollect"
	"github.com/continuum/internal/events"
	"github.com/continuum/internal/history"
	"github.com/continuum/internal/trigger"
	"github.com/continuum/internal/watcher"
)

// startTestLoop wires a full loop against a real watcher, a temp
// history database and a touch-file build command, and runs it in the
// background.
func startTestLoop(t *testing.T, src string) (*Loop, *trigger.CancellationToken, chan error) {
	t.Helper()

	cfg := &config.Config{
		Build:       config.BuildConfig{Command: "true", WorkingDir: "."},
		Tasks:       []config.TaskConfig{{Name: "compile", Roots: []string{src}}},
		QuietPeriod: 100 * time.Millisecond,
	}

	hist, err := history.NewDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	watcherMgr, err := watcher.NewManager()
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(watcherMgr.Stop)
	watcherMgr.Start()

	broadcaster := events.NewBroadcaster()
	token := trigger.NewCancellationToken()
	gate := trigger.NewExecutionGate()
	collector := errcollect.Noop()
	runner := NewRunner(cfg, hist, broadcaster, collector)
	loop := NewLoop(cfg, runner, watcherMgr, broadcaster, token, gate, collector)

	result := make(chan error, 1)
	go func() {
		result <- loop.Run(context.Background())
	}()
	return loop, token, result
}

func waitForState(t *testing.T, loop *Loop, state string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if loop.State() == state {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("loop never reached state %q (currently %q)", state, loop.State())
}

func TestLoop_RebuildsOnRelevantChange(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.go"), []byte("package a"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	loop, token, result := startTestLoop(t, src)
	waitForState(t, loop, "waiting")
	first := loop.CycleCount()

	if err := os.WriteFile(filepath.Join(src, "a.go"), []byte("package a // edit"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) && loop.CycleCount() == first {
		time.Sleep(20 * time.Millisecond)
	}
	if loop.CycleCount() == first {
		t.Fatal("a relevant change did not trigger a rebuild")
	}

	token.Cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("loop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancellation did not stop the loop")
	}
}

func TestLoop_CancelWhileWaitingStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	loop, token, result := startTestLoop(t, src)
	waitForState(t, loop, "waiting")

	token.Cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("loop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("cancellation did not stop the loop")
	}
	if loop.State() != "stopped" {
		t.Errorf("state = %q, want stopped", loop.State())
	}
}

func TestLoop_ManualTriggerRebuilds(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	loop, token, result := startTestLoop(t, src)
	waitForState(t, loop, "waiting")
	first := loop.CycleCount()

	loop.TriggerRebuild("Manual trigger")

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) && loop.CycleCount() == first {
		time.Sleep(20 * time.Millisecond)
	}
	if loop.CycleCount() == first {
		t.Fatal("manual trigger did not start a new cycle")
	}

	token.Cancel()
	<-result
}

func TestLoop_NoDeclaredInputsExits(t *testing.T) {
	cfg := &config.Config{
		Build:       config.BuildConfig{Command: "true", WorkingDir: "."},
		QuietPeriod: 50 * time.Millisecond,
	}

	hist, err := history.NewDB(t.TempDir())
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer hist.Close()

	watcherMgr, err := watcher.NewManager()
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer watcherMgr.Stop()
	watcherMgr.Start()

	broadcaster := events.NewBroadcaster()
	token := trigger.NewCancellationToken()
	collector := errcollect.Noop()
	runner := NewRunner(cfg, hist, broadcaster, collector)
	loop := NewLoop(cfg, runner, watcherMgr, broadcaster, token, trigger.NewExecutionGate(), collector)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("loop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("loop with no declared inputs should exit after the first build")
	}
}
