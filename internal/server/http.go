// Package server wires the status HTTP endpoints: a plain-text health check
// and the WebSocket upgrade route.
package server

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// healthHandler provides a simple health check endpoint reporting room size.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "linechat server is running! peers: %d\n", s.room.Len())
}

// setupRoutes configures the HTTP ServeMux with all application routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.healthHandler)
	mux.HandleFunc("/ws", s.websocketHandler)
	return mux
}

// startHTTP binds the status listener and serves it in the background. The
// timeouts cover plain HTTP requests only; upgraded WebSocket connections
// are hijacked out of the server and closed via connection tracking.
func (s *Server) startHTTP() error {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Bind synchronously so a bad HTTPAddr fails startup, not a goroutine.
	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.HTTPAddr, err)
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.httpAddr = ln.Addr().String()
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("http listener started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server failed")
		}
	}()

	return nil
}

// HTTPAddr returns the bound address of the status listener, or the empty
// string when the HTTP listener is disabled or not started.
func (s *Server) HTTPAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}
