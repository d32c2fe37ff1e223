package integration

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/chat"
	"linechat/internal/server"
	"linechat/test/testhelpers"
)

// startStoppableServer starts a server without the automatic cleanup so the
// test can call Shutdown itself.
func startStoppableServer(t *testing.T) (*server.Server, *chat.Room) {
	t.Helper()

	cfg := testhelpers.NewTestConfig()
	room := chat.NewRoom(cfg.QueueCapacity, zerolog.Nop())
	srv := server.New(*cfg, room, zerolog.Nop())
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	return srv, room
}

// TestShutdownWithNoClients verifies that an idle server shuts down cleanly.
func TestShutdownWithNoClients(t *testing.T) {
	srv, _ := startStoppableServer(t)

	if err := srv.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

// TestShutdownClosesActiveConnections verifies that connected clients are
// disconnected and all handlers finish within the timeout.
func TestShutdownClosesActiveConnections(t *testing.T) {
	srv, _ := startStoppableServer(t)
	addr := srv.Addr().String()

	alice := testhelpers.Dial(t, addr)
	alice.Handshake("Alice")

	bob := testhelpers.Dial(t, addr)
	bob.Handshake("Bob")
	alice.ExpectLine("Bob joined the chat room")

	if err := srv.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	alice.ExpectClosed()
	bob.ExpectClosed()
}

// TestShutdownStopsAccepting verifies that new connections are refused once
// shutdown completes.
func TestShutdownStopsAccepting(t *testing.T) {
	srv, _ := startStoppableServer(t)
	addr := srv.Addr().String()

	if err := srv.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	if conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		_ = conn.Close()
		t.Error("server accepted a connection after shutdown")
	}
}

// TestShutdownDuringNegotiation verifies that a client still sitting at the
// name prompt does not stall shutdown.
func TestShutdownDuringNegotiation(t *testing.T) {
	srv, room := startStoppableServer(t)
	addr := srv.Addr().String()

	ghost := testhelpers.Dial(t, addr)
	ghost.ExpectLine("Please enter your name: ")

	if err := srv.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	if got := room.Len(); got != 0 {
		t.Errorf("room.Len() = %d, want 0", got)
	}
}
