// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/continuum/internal/build"
	"github.com/continuum/internal/config"
	"github.com/continuum/internal/events"
	"github.com/continuum/internal/history"
	"github.com/continuum/internal/trigger"
	"github.com/continuum/internal/watcher"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Local status UI only; the daemon binds to localhost
		return true
	},
}

// Server exposes the daemon's status API and event streams
type Server struct {
	cfg         *config.Config
	loop        *build.Loop
	watcherMgr  *watcher.Manager
	hist        *history.DB
	broadcaster *events.Broadcaster
	gate        *trigger.ExecutionGate
}

// NewServer creates a new status server
func NewServer(cfg *config.Config, loop *build.Loop, watcherMgr *watcher.Manager, hist *history.DB, broadcaster *events.Broadcaster, gate *trigger.ExecutionGate) *Server {
	return &Server{
		cfg:         cfg,
		loop:        loop,
		watcherMgr:  watcherMgr,
		hist:        hist,
		broadcaster: broadcaster,
		gate:        gate,
	}
}

// Address returns the listen address
func (s *Server) Address() string {
	return fmt.Sprintf("localhost:%d", s.cfg.WebServer.Port)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	mux.HandleFunc("/api/trigger", s.handleTrigger)
	mux.HandleFunc("/api/gate/open", s.handleGateOpen)
	mux.HandleFunc("/api/gate/close", s.handleGateClose)

	return trafficLogger(mux)
}

// handleStatus returns current daemon status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"instance_id": s.cfg.InstanceID,
		"state":       s.loop.State(),
		"cycles":      s.loop.CycleCount(),
		"gate_open":   s.gate.IsOpen(),
		"watcher":     s.watcherMgr.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleHistory returns recent build cycles
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	builds, err := s.hist.RecentBuilds(50)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to query history: %v", err), http.StatusInternalServerError)
		return
	}

	type buildJSON struct {
		ID         string    `json:"id"`
		StartedAt  time.Time `json:"started_at"`
		DurationMS int64     `json:"duration_ms"`
		Outcome    string    `json:"outcome"`
		Trigger    string    `json:"trigger"`
	}
	out := make([]buildJSON, 0, len(builds))
	for _, b := range builds {
		out = append(out, buildJSON{b.ID, b.StartedAt, b.DurationMS, b.Outcome, b.Trigger})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"builds": out})
}

// handleStream handles Server-Sent Events
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan events.Event, 10)
	s.broadcaster.Subscribe(clientChan)
	defer s.broadcaster.Unsubscribe(clientChan)

	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected","message":"Connected to event stream"}`)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	for {
		select {
		case event := <-clientChan:
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handleWebSocket streams build events over a WebSocket connection
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientChan := make(chan events.Event, 10)
	s.broadcaster.Subscribe(clientChan)
	defer s.broadcaster.Unsubscribe(clientChan)

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	// Drain client frames so close/ping control messages are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-clientChan:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("WebSocket write failed: %v", err)
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handleTrigger injects a manual rebuild request
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.loop.TriggerRebuild("Manual trigger via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleGateOpen opens the execution gate
func (s *Server) handleGateOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.gate.Open()
	log.Printf("Execution gate opened via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "open"})
}

// handleGateClose closes the execution gate
func (s *Server) handleGateClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.gate.Close()
	log.Printf("Execution gate closed via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "closed"})
}
