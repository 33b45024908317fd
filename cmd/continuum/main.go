// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/continuum/internal/build"
	"github.com/continuum/internal/config"
	"github.com/continuum/internal/errcollect"
	"github.com/continuum/internal/events"
	"github.com/continuum/internal/history"
	"github.com/continuum/internal/logger"
	"github.com/continuum/internal/trigger"
	"github.com/continuum/internal/watcher"
	"github.com/continuum/internal/web"
)

var (
	configPath  = flag.String("config", "", "Path to config file (default: ~/.continuum/config.yaml)")
	command     = flag.String("command", "", "Build command to run each cycle (overrides config)")
	workingDir  = flag.String("dir", "", "Directory to run the build in (overrides config)")
	quietPeriod = flag.Duration("quiet-period", 0, "Idle time after the last change before rebuilding (overrides config)")
	webPort     = flag.Int("port", 0, "Status server port (overrides config)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.ApplyCLIFlags(cfg, *command, *workingDir, *quietPeriod, *webPort)

	log.Printf("Loaded configuration:")
	log.Printf("  Build command: %s", cfg.Build.Command)
	log.Printf("  Working dir: %s", cfg.Build.WorkingDir)
	log.Printf("  Tasks: %d", len(cfg.Tasks))
	log.Printf("  Quiet period: %s", cfg.QuietPeriod)
	log.Printf("  Status server port: %d", cfg.WebServer.Port)

	// Context for fatal interruption of an in-progress wait
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configDir, err := config.Dir()
	if err != nil {
		log.Fatalf("Failed to resolve config directory: %v", err)
	}
	if err := logger.Init(configDir); err != nil {
		log.Printf("Warning: file logging disabled: %v", err)
	}
	defer logger.Close()

	hist, err := history.NewDB(configDir)
	if err != nil {
		log.Fatalf("Failed to open history database: %v", err)
	}
	defer hist.Close()

	broadcaster := events.NewBroadcaster()

	watcherMgr, err := watcher.NewManager()
	if err != nil {
		log.Fatalf("Failed to initialize watcher: %v", err)
	}
	watcherMgr.Start()
	defer watcherMgr.Stop()

	token := trigger.NewCancellationToken()
	gate := trigger.NewExecutionGate()

	collector := errcollect.Noop()
	if cfg.CollectErrors {
		collector = errcollect.New()
	}

	runner := build.NewRunner(cfg, hist, broadcaster, collector)
	loop := build.NewLoop(cfg, runner, watcherMgr, broadcaster, token, gate, collector)

	// Start status server
	webServer := web.NewServer(cfg, loop, watcherMgr, hist, broadcaster, gate)
	httpServer := &http.Server{
		Addr:    webServer.Address(),
		Handler: webServer.Handler(),
	}
	go func() {
		log.Printf("Status server starting on http://%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Status server error: %v", err)
		}
	}()

	// Run the continuous build loop
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Printf("Continuum running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigChan:
		log.Printf("Received %s, stopping continuous build...", sig)
		token.Cancel()

		// The loop should unwind through cancellation; interrupt it if
		// it does not finish in time. A second signal exits immediately.
		select {
		case err := <-loopDone:
			if err != nil {
				log.Printf("Build loop error: %v", err)
			}
		case sig := <-sigChan:
			log.Printf("Received %s again, exiting", sig)
			os.Exit(1)
		case <-time.After(10 * time.Second):
			log.Printf("Build loop did not stop in time, interrupting")
			cancel()
			<-loopDone
		}
	case err := <-loopDone:
		if err != nil {
			log.Printf("Build loop error: %v", err)
		}
	}

	log.Printf("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Status server shutdown error: %v", err)
	}

	log.Printf("Continuum stopped")
}
