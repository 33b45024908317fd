// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package build

import (
	"context"
	"fmt"
	"log"
	"time"

	"os/exec"

	"github.com/gen2brain/beeep"

	"github.com/continuum/internal/config"
	"github.com/continuum/internal/errcollect"
	"github.com/continuum/internal/events"
	"github.com/continuum/internal/fingerprint"
	"github.com/continuum/internal/history"
	"github.com/continuum/internal/trigger"
)

// Runner executes the configured build command and fingerprints the
// declared task inputs afterwards.
type Runner struct {
	cfg         *config.Config
	hist        *history.DB
	broadcaster *events.Broadcaster
	collector   errcollect.Collector
}

// NewRunner creates a build runner
func NewRunner(cfg *config.Config, hist *history.DB, broadcaster *events.Broadcaster, collector errcollect.Collector) *Runner {
	return &Runner{
		cfg:         cfg,
		hist:        hist,
		broadcaster: broadcaster,
		collector:   collector,
	}
}

// Run executes one build cycle and records it. A failing build is a
// normal outcome, not an error; only being unable to start the build
// at all is an error.
func (r *Runner) Run(ctx context.Context, buildID, triggerSummary string) (string, error) {
	log.Printf("Starting build %s (%s)", buildID, triggerSummary)
	r.broadcaster.BuildEvent("build_started", buildID, triggerSummary)

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.cfg.Build.Command, r.cfg.Build.Args...)
	cmd.Dir = r.cfg.Build.WorkingDir
	output, err := cmd.CombinedOutput()
	duration := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	if ctx.Err() != nil {
		outcome = "cancelled"
	}

	record := history.Build{
		ID:         buildID,
		StartedAt:  start,
		DurationMS: duration.Milliseconds(),
		Outcome:    outcome,
		Trigger:    triggerSummary,
	}
	if histErr := r.hist.RecordBuild(record); histErr != nil {
		log.Printf("Failed to record build %s: %v", buildID, histErr)
	}

	switch outcome {
	case "success":
		log.Printf("Build %s succeeded in %s", buildID, duration.Round(time.Millisecond))
		r.broadcaster.BuildEvent("build_complete", buildID, fmt.Sprintf("Build succeeded in %s", duration.Round(time.Millisecond)))
	case "cancelled":
		log.Printf("Build %s cancelled after %s", buildID, duration.Round(time.Millisecond))
		r.broadcaster.BuildEvent("cancelled", buildID, "Build cancelled")
	default:
		log.Printf("Build %s failed after %s: %v\n%s", buildID, duration.Round(time.Millisecond), err, output)
		r.broadcaster.ErrorEvent("build_failed", buildID, "Build failed", err)
		r.notifyFailure(buildID, err)
	}
	return outcome, nil
}

// notifyFailure sends a desktop notification. Notification failures go
// through the error collector so a broken notifier cannot fail a cycle.
func (r *Runner) notifyFailure(buildID string, buildErr error) {
	if !r.cfg.Notifications {
		return
	}
	notify := r.collector.Wrap(func() error {
		return beeep.Alert("Build failed", fmt.Sprintf("Build %s failed: %v", buildID, buildErr), "")
	})
	if err := notify(); err != nil {
		log.Printf("Failed to send OS notification: %v", err)
	}
}

// FingerprintInputs snapshots every declared task's input roots,
// refreshes the fingerprint cache, and returns the fingerprints plus
// the names of tasks whose inputs changed since the cached hash.
func (r *Runner) FingerprintInputs() (map[string]trigger.Fingerprint, []string, error) {
	fingerprints := make(map[string]trigger.Fingerprint, len(r.cfg.Tasks))
	var changed []string

	for _, task := range r.cfg.Tasks {
		fp, err := fingerprint.Snapshot(task.Name, task.Roots)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fingerprint task %s: %w", task.Name, err)
		}
		fingerprints[task.Name] = fp

		combined := fp.CombinedHash()
		cached, err := r.hist.TaskHash(task.Name)
		if err != nil {
			log.Printf("Failed to read cached fingerprint for %s: %v", task.Name, err)
		} else if cached != combined {
			changed = append(changed, task.Name)
			if err := r.hist.UpsertTaskHash(task.Name, combined); err != nil {
				log.Printf("Failed to cache fingerprint for %s: %v", task.Name, err)
			}
		}
	}
	return fingerprints, changed, nil
}
