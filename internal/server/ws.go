// Package server bridges WebSocket clients into the chat room. A WebSocket
// peer follows the same protocol as a TCP peer, with one text message
// standing in for one line.
package server

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"linechat/internal/chat"
)

// websocketHandler upgrades the request and runs the chat protocol over the
// resulting connection. The handler blocks for the connection's lifetime,
// which is fine under net/http's per-request goroutine.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origin.check,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	// Track the hijacked connection so Shutdown can close it; the HTTP
	// server no longer owns it after the upgrade.
	raw := conn.UnderlyingConn()
	s.track(raw)
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.untrack(raw)

	s.handleWebSocket(conn)
}

// handleWebSocket mirrors handleConn for a WebSocket transport: prompt, name
// message, welcome, join, then the receive/send loop pair.
func (s *Server) handleWebSocket(conn *websocket.Conn) {
	addr := conn.RemoteAddr().String()
	log := s.log.With().Str("addr", addr).Str("transport", "websocket").Logger()

	defer func() {
		if err := conn.Close(); err != nil && !isExpectedWebSocketError(err) {
			log.Warn().Err(err).Msg("error closing websocket connection")
		}
		log.Info().Msg("websocket connection closed")
	}()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(namePrompt)); err != nil {
		log.Warn().Err(err).Msg("failed to send name prompt")
		return
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		if isExpectedWebSocketError(err) {
			return
		}
		log.Warn().Err(err).Msg("failed to read name")
		return
	}
	name := strings.TrimRight(string(data), "\r\n")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("Welcome! "+name)); err != nil {
		log.Warn().Err(err).Msg("failed to send welcome")
		return
	}

	peer := s.room.Join(addr, name)
	limiter := newMessageLimiter(s.cfg.RateLimit)

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		if err := s.websocketReceiveLoop(conn, peer, limiter, log); err != nil {
			log.Warn().Err(err).Str("peer", name).Msg("websocket receive loop failed")
		}
		s.room.Leave(addr, name)
	}()

	if err := s.websocketSendLoop(conn, peer); err != nil && !isExpectedWebSocketError(err) {
		log.Warn().Err(err).Str("peer", name).Msg("websocket send loop failed")
	}
	s.room.Leave(addr, name)

	if err := conn.Close(); err != nil && !isExpectedWebSocketError(err) {
		log.Warn().Err(err).Msg("error closing websocket connection")
	}
	<-recvDone
}

func (s *Server) websocketReceiveLoop(conn *websocket.Conn, peer *chat.Peer, limiter *rate.Limiter, log zerolog.Logger) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isExpectedWebSocketError(err) {
				return nil
			}
			return err
		}

		line := strings.TrimSpace(string(data))
		if line == "" {
			continue
		}

		if !limiter.Allow() {
			log.Warn().Str("peer", peer.Name()).Msg("rate limit exceeded; discarding message")
			continue
		}

		s.room.Broadcast(peer.Addr(), chat.NewChat(peer.Name(), line))
	}
}

func (s *Server) websocketSendLoop(conn *websocket.Conn, peer *chat.Peer) error {
	for {
		select {
		case <-peer.Done():
			return conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		case msg := <-peer.Inbox():
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.String())); err != nil {
				return err
			}
		}
	}
}

// isExpectedWebSocketError checks for the close conditions a disconnecting
// websocket peer normally produces.
func isExpectedWebSocketError(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
