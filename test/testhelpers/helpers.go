// Package testhelpers provides common utilities for exercising the chat
// server in tests: starting a server on ephemeral ports, a line-oriented
// TCP chat client, and WebSocket dialing helpers.
package testhelpers

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"linechat/internal/chat"
	"linechat/internal/server"
)

const (
	readTimeout     = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// NewTestConfig returns a config bound to ephemeral loopback ports with a
// generous rate limit so ordinary tests never trip it.
func NewTestConfig() *server.Config {
	cfg := server.NewConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HTTPAddr = ""
	cfg.AllowedOrigins = []string{"http://localhost:8080"}
	cfg.RateLimit.Burst = 1000
	cfg.RateLimit.RefillInterval = time.Second
	return cfg
}

// StartServer builds a room and server from cfg, starts it, and registers a
// cleanup that shuts it down. It returns the server and its room.
func StartServer(t *testing.T, cfg *server.Config) (*server.Server, *chat.Room) {
	t.Helper()

	room := chat.NewRoom(cfg.QueueCapacity, zerolog.Nop())
	srv := server.New(*cfg, room, zerolog.Nop())

	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(shutdownTimeout)
	})

	return srv, room
}

// ChatClient is a line-oriented TCP client for driving the chat protocol.
type ChatClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects a ChatClient to the given chat listener address.
func Dial(t *testing.T, addr string) *ChatClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, readTimeout)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", addr, err)
	}

	c := &ChatClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
	t.Cleanup(c.Close)
	return c
}

// ReadLine reads one line from the server, failing the test on timeout.
func (c *ChatClient) ReadLine() string {
	c.t.Helper()

	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.t.Fatalf("failed to set read deadline: %v", err)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("failed to read line: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// ExpectLine reads one line and fails the test unless it matches want.
func (c *ChatClient) ExpectLine(want string) {
	c.t.Helper()

	if got := c.ReadLine(); got != want {
		c.t.Fatalf("read %q, want %q", got, want)
	}
}

// ExpectNoLine fails the test if the server sends anything within a short
// window.
func (c *ChatClient) ExpectNoLine() {
	c.t.Helper()

	if err := c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
		c.t.Fatalf("failed to set read deadline: %v", err)
	}
	line, err := c.reader.ReadString('\n')
	if err == nil {
		c.t.Fatalf("unexpectedly received %q", strings.TrimRight(line, "\r\n"))
	}
	if !isTimeout(err) {
		c.t.Fatalf("read failed with non-timeout error: %v", err)
	}
}

// ExpectClosed fails the test unless the server closes the connection.
func (c *ChatClient) ExpectClosed() {
	c.t.Helper()

	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.t.Fatalf("failed to set read deadline: %v", err)
	}
	for {
		if _, err := c.reader.ReadString('\n'); err != nil {
			if isTimeout(err) {
				c.t.Fatal("connection still open, expected server to close it")
			}
			return
		}
	}
}

// SendLine writes one newline-terminated line to the server.
func (c *ChatClient) SendLine(line string) {
	c.t.Helper()

	if err := c.conn.SetWriteDeadline(time.Now().Add(readTimeout)); err != nil {
		c.t.Fatalf("failed to set write deadline: %v", err)
	}
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("failed to send line: %v", err)
	}
}

// Handshake completes name negotiation, asserting the prompt and welcome
// lines along the way.
func (c *ChatClient) Handshake(name string) {
	c.t.Helper()

	c.ExpectLine("Please enter your name: ")
	c.SendLine(name)
	c.ExpectLine("Welcome! " + name)
}

// Close closes the underlying connection. Safe to call more than once.
func (c *ChatClient) Close() {
	_ = c.conn.Close()
}

func isTimeout(err error) bool {
	e, ok := err.(net.Error)
	return ok && e.Timeout()
}

// DialWebSocket connects to the server's /ws endpoint with the given Origin
// header and returns the connection.
func DialWebSocket(t *testing.T, httpAddr, origin string) (*websocket.Conn, error) {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: readTimeout}
	headers := http.Header{}
	headers.Set("Origin", origin)

	conn, resp, err := dialer.Dial("ws://"+httpAddr+"/ws", headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

// ReadWebSocketText reads one text message, failing the test on timeout.
func ReadWebSocketText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read websocket message: %v", err)
	}
	return string(data)
}
