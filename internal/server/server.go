// Package server constructs and runs the chat service's listeners: the TCP
// chat endpoint and the optional HTTP status/WebSocket endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/chat"
)

// Server accepts chat connections and hands each one to a connection
// handler. It tracks open connections so shutdown can close them all.
type Server struct {
	cfg    Config
	room   *chat.Room
	log    zerolog.Logger
	origin *originChecker

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	httpAddr   string
	conns      map[net.Conn]struct{}

	wg sync.WaitGroup
}

// New creates a Server for the given room. Start must be called before the
// server accepts any connections.
func New(cfg Config, room *chat.Room, log zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		room:   room,
		log:    log,
		origin: newOriginChecker(cfg.AllowedOrigins, log),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the TCP listener (and the HTTP listener when configured) and
// begins accepting connections in background goroutines. A bind failure is
// the only unrecoverable startup error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.ListenAddr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("chat listener started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()

	if s.cfg.HTTPAddr != "" {
		if err := s.startHTTP(); err != nil {
			_ = ln.Close()
			return err
		}
	}

	return nil
}

// Addr returns the bound address of the chat listener, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts connections until the listener is closed. A failure to
// accept or handle one connection never stops the loop.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.log.Info().Str("addr", conn.RemoteAddr().String()).Msg("accepted connection")
		s.track(conn)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// Shutdown closes the listeners and every tracked connection, then waits for
// the connection handlers to finish or the timeout to elapse.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info().Msg("shutting down")

	s.mu.Lock()
	ln := s.listener
	httpServer := s.httpServer
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := httpServer.Shutdown(ctx); err != nil {
			s.log.Warn().Err(err).Msg("http server shutdown error")
		}
		cancel()
	}

	for _, conn := range conns {
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn().Err(err).Str("addr", conn.RemoteAddr().String()).
				Msg("error closing connection during shutdown")
		}
	}
	s.log.Info().Int("count", len(conns)).Msg("closed active connections")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("shutdown completed")
		return nil
	case <-time.After(timeout):
		s.log.Warn().Msg("shutdown timeout reached, some handlers may still be running")
		return context.DeadlineExceeded
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// isExpectedCloseError checks if an error is expected during connection
// closure or teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe")
}
