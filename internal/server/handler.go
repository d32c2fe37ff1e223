// Package server drives individual chat connections: name negotiation, the
// receive/send loop pair, and idempotent teardown through the room.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"linechat/internal/chat"
)

const namePrompt = "Please enter your name: "

// handleConn owns one accepted TCP connection from name negotiation until
// both loops have stopped. All errors here are connection-local; nothing
// propagates back to the accept loop.
func (s *Server) handleConn(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	log := s.log.With().Str("addr", addr).Logger()

	defer func() {
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Warn().Err(err).Msg("error closing connection")
		}
		log.Info().Msg("connection closed")
	}()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	name, ok := s.negotiateName(reader, writer, log)
	if !ok {
		return
	}

	peer := s.room.Join(addr, name)
	limiter := newMessageLimiter(s.cfg.RateLimit)

	// Receive loop: socket lines become chat broadcasts. Whichever loop
	// exits first calls Leave; the second call is a no-op.
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		if err := s.receiveLoop(reader, peer, limiter, log); err != nil {
			log.Warn().Err(err).Str("peer", name).Msg("receive loop failed")
		}
		s.room.Leave(addr, name)
	}()

	// Send loop: drains the peer's inbox onto the socket.
	if err := s.sendLoop(writer, peer); err != nil && !isExpectedCloseError(err) {
		log.Warn().Err(err).Str("peer", name).Msg("send loop failed")
	}
	s.room.Leave(addr, name)

	// Unblock the receive loop's pending read, then wait for it so the
	// handler accounts for both loops.
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Warn().Err(err).Msg("error closing connection")
	}
	<-recvDone
}

// negotiateName runs the prompt/name/welcome exchange. A peer that
// disconnects before sending a name is a normal, silent termination; a
// transport error is logged. ok reports whether the handler should proceed
// to join the room.
func (s *Server) negotiateName(reader *bufio.Reader, writer *bufio.Writer, log zerolog.Logger) (name string, ok bool) {
	if err := writeLine(writer, namePrompt); err != nil {
		log.Warn().Err(err).Msg("failed to send name prompt")
		return "", false
	}

	name, err := readLine(reader)
	if err != nil {
		if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
			return "", false
		}
		log.Warn().Err(err).Msg("failed to read name")
		return "", false
	}

	if err := writeLine(writer, "Welcome! "+name); err != nil {
		log.Warn().Err(err).Msg("failed to send welcome")
		return "", false
	}

	return name, true
}

// receiveLoop reads lines from the socket and broadcasts each non-blank one
// as a chat message. It returns nil on a normal stream end and an error on
// transport failure.
func (s *Server) receiveLoop(reader *bufio.Reader, peer *chat.Peer, limiter *rate.Limiter, log zerolog.Logger) error {
	for {
		line, err := readLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !limiter.Allow() {
			log.Warn().Str("peer", peer.Name()).
				Int("burst", s.cfg.RateLimit.Burst).
				Dur("interval", s.cfg.RateLimit.RefillInterval).
				Msg("rate limit exceeded; discarding message")
			continue
		}

		s.room.Broadcast(peer.Addr(), chat.NewChat(peer.Name(), line))
	}
}

// sendLoop writes each inbox message to the socket as one rendered line. It
// stops when the peer leaves the room or a write fails.
func (s *Server) sendLoop(writer *bufio.Writer, peer *chat.Peer) error {
	for {
		select {
		case <-peer.Done():
			return nil
		case msg := <-peer.Inbox():
			if err := writeLine(writer, msg.String()); err != nil {
				return err
			}
		}
	}
}

// newMessageLimiter builds the per-connection chat throttle: Burst messages
// per RefillInterval, with the bucket starting full.
func newMessageLimiter(cfg RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.RefillInterval <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Every(cfg.RefillInterval/time.Duration(burst)), burst)
}

// readLine reads one newline-delimited frame, tolerating a missing trailing
// newline on the final line and stripping any carriage return.
func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// writeLine frames text as one line and flushes it to the socket.
func writeLine(writer *bufio.Writer, text string) error {
	if _, err := writer.WriteString(text); err != nil {
		return err
	}
	if err := writer.WriteByte('\n'); err != nil {
		return err
	}
	return writer.Flush()
}
