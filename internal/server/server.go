package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"connstate/internal/host"
	"connstate/internal/logging"
	"connstate/internal/models"
)

var logger = logging.Logger("server")

// StateSource answers the synchronous connection state query and names the
// signals relayed on the stream.
type StateSource interface {
	GetConnectionState() models.Record
	Signals() []string
}

// InterfaceSource lists per-interface snapshots.
type InterfaceSource interface {
	Available() []models.ConnectionInfo
}

// Options carries the server dependencies.
type Options struct {
	Addr         string
	State        StateSource
	Interfaces   InterfaceSource
	Signals      *host.Bus
	Metrics      http.Handler
	WriteTimeout time.Duration
}

// Server wraps HTTP serving of the state API and the signal stream.
type Server struct {
	httpServer   *http.Server
	state        StateSource
	interfaces   InterfaceSource
	signals      *host.Bus
	writeTimeout time.Duration
}

// New creates a configured HTTP server.
func New(opts Options) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: opts.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		state:        opts.State,
		interfaces:   opts.Interfaces,
		signals:      opts.Signals,
		writeTimeout: opts.WriteTimeout,
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	s.registerRoutes(mux, opts.Metrics)
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux, metrics http.Handler) {
	mux.HandleFunc("/api/connection/state", s.handleState)
	mux.HandleFunc("/api/connection/interfaces", s.handleInterfaces)
	mux.HandleFunc("/api/connection/signals", s.handleSignalsWS)
	mux.HandleFunc("/api/plugin", s.handlePlugin)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.state.GetConnectionState())
}

func (s *Server) handlePlugin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "connstate",
		"signals": s.state.Signals(),
	})
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	records := []models.Record{}
	if s.interfaces != nil {
		for _, info := range s.interfaces.Available() {
			records = append(records, info.Record())
		}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
