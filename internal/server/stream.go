package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"connstate/internal/host"
)

const (
	defaultWriteTimeout = 5 * time.Second
	streamPingInterval  = 30 * time.Second

	// SignalState is the name of the frame sent when a stream opens.
	SignalState = "connection_state"
)

var signalUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		reqHost := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return reqHost == originHost
	},
}

func (s *Server) handleSignalsWS(w http.ResponseWriter, r *http.Request) {
	if s.signals == nil {
		http.Error(w, "signal stream disabled", http.StatusServiceUnavailable)
		return
	}
	conn, err := signalUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveSignalConnection(conn)
}

// serveSignalConnection writes the current state, then every bus signal,
// until the peer goes away or the bus closes.
func (s *Server) serveSignalConnection(conn *websocket.Conn) {
	defer conn.Close()

	signals, cancel := s.signals.Subscribe()
	defer cancel()

	initial := host.Signal{
		Name:      SignalState,
		Args:      []any{s.state.GetConnectionState()},
		EmittedAt: time.Now().UTC(),
	}
	if err := s.writeFrame(conn, initial); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(s.writeTimeout))
				return
			}
			if err := s.writeFrame(conn, sig); err != nil {
				logger.Debug("signal stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, sig host.Signal) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteJSON(sig)
}
