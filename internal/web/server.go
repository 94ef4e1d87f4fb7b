// Package web provides the HTTP status and control surface for the field
// controller.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/smartfarm/field-controller/internal/status"
)

// Controls is what the HTTP handlers can ask of the control loop. Requests
// are picked up on the next cycle.
type Controls interface {
	// RequestManualIrrigation asks for one manual watering cycle.
	RequestManualIrrigation()

	// RequestReset clears the emergency stop latch and the supervisor's
	// failure episode.
	RequestReset()
}

// Server serves the status page, JSON, metrics, and control endpoints.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	controls   Controls
}

// New creates a Server that reads state from the given tracker. metricsHandler
// may be nil, in which case /metrics responds 404.
func New(addr string, tracker *status.Tracker, controls Controls, metricsHandler http.Handler) *Server {
	s := &Server{tracker: tracker, controls: controls}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/irrigate", s.handleIrrigate)
	mux.HandleFunc("/reset", s.handleReset)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleIrrigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.controls.RequestManualIrrigation()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"requested":"irrigate"}`))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.controls.RequestReset()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"requested":"reset"}`))
}
