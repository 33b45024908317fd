// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package build

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/continuum/internal/config"
	"github.com/continuum/internal/errcollect"
	"github.com/continuum/internal/events"
	"github.com/continuum/internal/trigger"
	"github.com/continuum/internal/watcher"
)

// Loop drives the continuous build cycle: run the build, fold the
// executed tasks' fingerprints into a fresh change listener, block
// until changes settle, report them, repeat. The loop exits cleanly on
// cancellation and with an error on interruption.
type Loop struct {
	cfg         *config.Config
	runner      *Runner
	watcherMgr  *watcher.Manager
	broadcaster *events.Broadcaster
	token       *trigger.CancellationToken
	gate        *trigger.ExecutionGate
	collector   errcollect.Collector

	mu       sync.RWMutex
	current  *trigger.ChangeListener
	state    string // "building", "waiting", "stopped"
	cycleNum int
}

// NewLoop wires the continuous build loop
func NewLoop(cfg *config.Config, runner *Runner, watcherMgr *watcher.Manager, broadcaster *events.Broadcaster, token *trigger.CancellationToken, gate *trigger.ExecutionGate, collector errcollect.Collector) *Loop {
	return &Loop{
		cfg:         cfg,
		runner:      runner,
		watcherMgr:  watcherMgr,
		broadcaster: broadcaster,
		token:       token,
		gate:        gate,
		collector:   collector,
		state:       "stopped",
	}
}

// State reports what the loop is currently doing
func (l *Loop) State() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// CycleCount returns how many build cycles have started
func (l *Loop) CycleCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cycleNum
}

// TriggerRebuild injects a manual pending change into the current wait
// cycle, if one is in progress.
func (l *Loop) TriggerRebuild(reason string) {
	l.mu.RLock()
	listener := l.current
	l.mu.RUnlock()
	if listener != nil {
		listener.TriggerRebuild(reason)
	}
}

// Run executes build cycles until cancellation. ctx is the fatal
// interruption path (daemon shutdown deadline); a done context aborts
// an in-progress wait with an error.
func (l *Loop) Run(ctx context.Context) error {
	defer l.setState("stopped")

	triggerSummary := "initial build"
	for !l.token.Requested() {
		buildID := uuid.New().String()
		l.beginCycle()

		// The listener is armed before the build runs so changes made
		// mid-build are already counted against the next cycle.
		listener := trigger.NewChangeListener(l.token, l.gate, l.cfg.QuietPeriod, func() {
			l.broadcaster.BuildEvent("change_detected", buildID, "Pending changes detected")
		})
		l.setCurrent(listener)
		l.watcherMgr.SetHandler(listener)

		if _, err := l.runner.Run(ctx, buildID, triggerSummary); err != nil {
			return fmt.Errorf("build %s could not run: %w", buildID, err)
		}

		fingerprints, changedTasks, err := l.runner.FingerprintInputs()
		if err != nil {
			return fmt.Errorf("failed to fingerprint inputs: %w", err)
		}
		if len(changedTasks) > 0 {
			log.Printf("Input fingerprints changed for: %s", strings.Join(changedTasks, ", "))
		}

		listener.OnBuildComplete(fingerprints)
		if !listener.HasAnyInputs() {
			log.Printf("No tasks declare file system inputs, exiting continuous build")
			return nil
		}
		if err := l.watcherMgr.WatchRoots(listener.Inputs().Roots()); err != nil {
			return fmt.Errorf("failed to watch inputs: %w", err)
		}

		l.setState("waiting")
		err = listener.Wait(ctx, func() {
			log.Printf("Waiting for changes to input files...")
			l.broadcaster.BuildEvent("waiting", buildID, "Waiting for changes to input files")
		})
		if err != nil {
			return err
		}
		if l.token.Requested() {
			break
		}

		lines := listener.ReportChanges()
		for _, line := range lines {
			log.Printf("%s", line)
		}
		triggerSummary = "changes detected"
		if len(lines) > 0 {
			triggerSummary = lines[0]
		}

		l.drainCollectedErrors()
	}

	log.Printf("Build cancelled")
	l.broadcaster.BuildEvent("cancelled", "", "Continuous build stopped")
	return nil
}

func (l *Loop) beginCycle() {
	l.mu.Lock()
	l.cycleNum++
	l.state = "building"
	l.mu.Unlock()
}

func (l *Loop) setCurrent(listener *trigger.ChangeListener) {
	l.mu.Lock()
	l.current = listener
	l.mu.Unlock()
}

func (l *Loop) setState(state string) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

// drainCollectedErrors logs hook errors captured during the cycle
func (l *Loop) drainCollectedErrors() {
	for _, err := range l.collector.Errors() {
		log.Printf("Collected hook error: %v", err)
	}
	l.collector.Reset()
}
