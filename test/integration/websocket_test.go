package integration

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"linechat/test/testhelpers"
)

const testOrigin = "http://localhost:8080"

// startServerWithHTTP starts a server with the HTTP/WebSocket listener
// enabled on an ephemeral port.
func startServerWithHTTP(t *testing.T) (chatAddr, httpAddr string) {
	t.Helper()

	cfg := testhelpers.NewTestConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.AllowedOrigins = []string{testOrigin}

	srv, _ := testhelpers.StartServer(t, cfg)
	return srv.Addr().String(), srv.HTTPAddr()
}

// TestHealthEndpoint verifies the plain-text status page.
func TestHealthEndpoint(t *testing.T) {
	_, httpAddr := startServerWithHTTP(t)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + httpAddr + "/")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if len(body) == 0 {
		t.Error("health endpoint returned an empty body")
	}
}

// TestWebSocketNegotiation verifies the prompt/name/welcome exchange over a
// WebSocket connection.
func TestWebSocketNegotiation(t *testing.T) {
	_, httpAddr := startServerWithHTTP(t)

	conn, err := testhelpers.DialWebSocket(t, httpAddr, testOrigin)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}

	if got := testhelpers.ReadWebSocketText(t, conn); got != "Please enter your name: " {
		t.Fatalf("prompt = %q, want %q", got, "Please enter your name: ")
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("Wanda")); err != nil {
		t.Fatalf("failed to send name: %v", err)
	}
	if got := testhelpers.ReadWebSocketText(t, conn); got != "Welcome! Wanda" {
		t.Fatalf("welcome = %q, want %q", got, "Welcome! Wanda")
	}
}

// TestWebSocketDisallowedOrigin verifies that an unconfigured origin cannot
// complete the upgrade.
func TestWebSocketDisallowedOrigin(t *testing.T) {
	_, httpAddr := startServerWithHTTP(t)

	if _, err := testhelpers.DialWebSocket(t, httpAddr, "http://evil.example.com"); err == nil {
		t.Error("upgrade succeeded from a disallowed origin")
	}
}

// TestCrossTransportChat verifies that a WebSocket peer and a TCP peer share
// one room: joins, chats, and leaves cross the transport boundary.
func TestCrossTransportChat(t *testing.T) {
	chatAddr, httpAddr := startServerWithHTTP(t)

	alice := testhelpers.Dial(t, chatAddr)
	alice.Handshake("Alice")

	conn, err := testhelpers.DialWebSocket(t, httpAddr, testOrigin)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	testhelpers.ReadWebSocketText(t, conn) // prompt
	if err := conn.WriteMessage(websocket.TextMessage, []byte("Wanda")); err != nil {
		t.Fatalf("failed to send name: %v", err)
	}
	if got := testhelpers.ReadWebSocketText(t, conn); got != "Welcome! Wanda" {
		t.Fatalf("welcome = %q, want %q", got, "Welcome! Wanda")
	}

	alice.ExpectLine("Wanda joined the chat room")

	// WebSocket to TCP.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("hi from ws")); err != nil {
		t.Fatalf("failed to send chat: %v", err)
	}
	alice.ExpectLine("Wanda: hi from ws")

	// TCP to WebSocket.
	alice.SendLine("hi from tcp")
	if got := testhelpers.ReadWebSocketText(t, conn); got != "Alice: hi from tcp" {
		t.Fatalf("ws received %q, want %q", got, "Alice: hi from tcp")
	}

	// WebSocket departure shows up as a leave line for the TCP peer.
	if err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("failed to send close: %v", err)
	}
	alice.ExpectLine("Wanda left the chat room")
}

// TestWebSocketBlankMessagesSuppressed verifies blank-frame suppression on
// the WebSocket path too.
func TestWebSocketBlankMessagesSuppressed(t *testing.T) {
	chatAddr, httpAddr := startServerWithHTTP(t)

	alice := testhelpers.Dial(t, chatAddr)
	alice.Handshake("Alice")

	conn, err := testhelpers.DialWebSocket(t, httpAddr, testOrigin)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	testhelpers.ReadWebSocketText(t, conn) // prompt
	if err := conn.WriteMessage(websocket.TextMessage, []byte("Wanda")); err != nil {
		t.Fatalf("failed to send name: %v", err)
	}
	testhelpers.ReadWebSocketText(t, conn) // welcome
	alice.ExpectLine("Wanda joined the chat room")

	for _, payload := range []string{"", "   ", "\t"} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			t.Fatalf("failed to send blank frame: %v", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("failed to send chat: %v", err)
	}

	alice.ExpectLine("Wanda: ping")
	alice.ExpectNoLine()
}
