// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package trigger

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// Sentinel payloads for the pending-signal slot. Anything else in the
// slot is the absolute path of the change that filled it.
const (
	cancelledSignal  = "Build cancelled"
	watchErrorSignal = "Error watching files"
)

// monotonicBase anchors lastChangeAt timestamps. time.Since uses the
// monotonic clock, so wall clock adjustments cannot shrink or stretch
// the quiet period.
var monotonicBase = time.Now()

func monotonicMillis() int64 {
	return time.Since(monotonicBase).Milliseconds()
}

// Fingerprint exposes the file system roots an executed task read
// from. The listener only needs the root paths, not the hashes.
type Fingerprint interface {
	RootPaths() []string
}

// ChangeListener coordinates raw file events, a cancellation token and
// the execution gate into a single debounced build trigger. One
// listener serves one wait cycle: the loop constructs a fresh listener
// per build, feeds it the executed tasks' fingerprints, then blocks in
// Wait until the next rebuild is due.
//
// Producers (the watcher, the canceller) only ever perform non-blocking
// sends into the capacity-1 pending slot; a lost send is deliberate
// coalescing, because lastChangeAt is tracked independently and the
// quiet-period loop re-evaluates it.
type ChangeListener struct {
	token            *CancellationToken
	gate             *ExecutionGate
	quietPeriod      time.Duration
	onPendingChanges func()

	pendingChanges chan string
	collector      *EventCollector
	inputs         atomic.Pointer[RootSet]
	lastChangeAt   atomic.Int64
}

// NewChangeListener creates a listener for one wait cycle. quietPeriod
// is the minimum idle time after the last relevant change before Wait
// returns; onPendingChanges (optional) fires at most once per
// empty-to-full transition of the signal slot.
func NewChangeListener(token *CancellationToken, gate *ExecutionGate, quietPeriod time.Duration, onPendingChanges func()) *ChangeListener {
	l := &ChangeListener{
		token:            token,
		gate:             gate,
		quietPeriod:      quietPeriod,
		onPendingChanges: onPendingChanges,
		pendingChanges:   make(chan string, 1),
		collector:        NewEventCollector(),
	}
	empty := EmptyRootSet()
	l.inputs.Store(&empty)
	l.lastChangeAt.Store(monotonicMillis())
	return l
}

// Inputs returns the current root set snapshot.
func (l *ChangeListener) Inputs() RootSet {
	return *l.inputs.Load()
}

// HasAnyInputs reports whether any completed build has declared file
// system inputs. While false, no event can be relevant and the loop
// has nothing to watch.
func (l *ChangeListener) HasAnyInputs() bool {
	return !l.Inputs().Empty()
}

// OnBuildComplete folds the root paths of every executed task's
// fingerprint into the input set. Single-threaded fold from the
// build-completion callback; the snapshot is published atomically so
// concurrent HandleChange calls always see a complete set.
func (l *ChangeListener) OnBuildComplete(fingerprints map[string]Fingerprint) {
	inputs := l.Inputs()
	for _, fingerprint := range fingerprints {
		for _, root := range fingerprint.RootPaths() {
			inputs = inputs.Append(root)
		}
	}
	l.inputs.Store(&inputs)
}

// HandleChange consumes one raw watcher event. lastChangeAt moves on
// every event, relevant or not; only events under a tracked root are
// aggregated and offered to the pending slot. Safe from any goroutine.
func (l *ChangeListener) HandleChange(changeType ChangeType, path string) {
	l.lastChangeAt.Store(monotonicMillis())
	if l.Inputs().Contains(path) {
		l.collector.OnChange(changeType, path)
		if l.offer(path) && l.onPendingChanges != nil {
			l.onPendingChanges()
		}
	}
}

// TriggerRebuild injects a manual pending change, bypassing the input
// filter but not the quiet period or the gate. Used by the web API.
func (l *ChangeListener) TriggerRebuild(reason string) {
	if l.offer(reason) && l.onPendingChanges != nil {
		l.onPendingChanges()
	}
}

// StopWatchingAfterError records a watch subsystem failure and wakes a
// pending wait. A broken watcher must trigger a rebuild rather than
// silently miss changes.
func (l *ChangeListener) StopWatchingAfterError() {
	l.collector.ErrorWhenWatching()
	if l.offer(watchErrorSignal) && l.onPendingChanges != nil {
		l.onPendingChanges()
	}
}

// offer performs a non-blocking send into the pending slot and reports
// whether the slot was empty.
func (l *ChangeListener) offer(payload string) bool {
	select {
	case l.pendingChanges <- payload:
		return true
	default:
		return false
	}
}

// Wait blocks until a relevant change has settled for the quiet period
// and the execution gate is open, or until cancellation. notifyReady
// runs after the cancellation callback is registered and before the
// blocking take, so no change in that window can be missed.
//
// Returns nil on both a settled trigger and cancellation; the caller
// distinguishes them through the token. A done context is the fatal
// interruption path: the wait aborts with an error and is never
// retried.
func (l *ChangeListener) Wait(ctx context.Context, notifyReady func()) error {
	if l.token.Requested() {
		return nil
	}

	callbackID := l.token.AddCallback(func() {
		l.offer(cancelledSignal)
	})
	defer l.token.RemoveCallback(callbackID)

	if notifyReady != nil {
		notifyReady()
	}

	select {
	case pendingChange := <-l.pendingChanges:
		log.Printf("Received pending change: %s", pendingChange)
	case <-ctx.Done():
		return fmt.Errorf("interrupted waiting for changes: %w", ctx.Err())
	}

	for !l.token.Requested() {
		now := monotonicMillis()
		remaining := l.quietPeriod - time.Duration(now-l.lastChangeAt.Load())*time.Millisecond
		if remaining <= 0 {
			break
		}
		timer := time.NewTimer(remaining)
		select {
		case <-l.pendingChanges:
			// Fresh token; remaining is re-evaluated next iteration.
			timer.Stop()
		case <-timer.C:
			// Quiet so far; the loop re-checks lastChangeAt to catch
			// late events that lost the race for the slot.
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("interrupted during quiet period: %w", ctx.Err())
		}
	}

	if !l.token.Requested() {
		if err := l.gate.WaitForOpen(ctx); err != nil {
			return fmt.Errorf("interrupted at execution gate: %w", err)
		}
	}
	return nil
}

// ReportChanges returns the aggregated change summary for the cycle.
func (l *ChangeListener) ReportChanges() []string {
	return l.collector.Report()
}
