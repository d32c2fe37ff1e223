package server

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

// TestReadLine verifies line framing: newline and CRLF delimiters, a final
// line without a trailing newline, and a clean EOF.
func TestReadLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"newline terminated", "hello\n", "hello", nil},
		{"crlf terminated", "hello\r\n", "hello", nil},
		{"final line without newline", "hello", "hello", nil},
		{"empty line", "\n", "", nil},
		{"empty stream", "", "", io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readLine(bufio.NewReader(strings.NewReader(tt.input)))
			if err != tt.wantErr {
				t.Fatalf("readLine() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestWriteLine verifies that writeLine frames and flushes one line.
func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	writer := bufio.NewWriter(&buf)

	if err := writeLine(writer, "Welcome! Alice"); err != nil {
		t.Fatalf("writeLine() error: %v", err)
	}

	if got := buf.String(); got != "Welcome! Alice\n" {
		t.Errorf("wrote %q, want %q", got, "Welcome! Alice\n")
	}
}

// TestMessageLimiterBurst verifies that the limiter admits exactly the
// configured burst before throttling.
func TestMessageLimiterBurst(t *testing.T) {
	limiter := newMessageLimiter(RateLimitConfig{Burst: 3, RefillInterval: time.Hour})

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("message %d rejected within burst", i+1)
		}
	}
	if limiter.Allow() {
		t.Error("message beyond burst was admitted")
	}
}

// TestMessageLimiterUnlimitedWithoutInterval verifies that a zero refill
// interval disables throttling entirely.
func TestMessageLimiterUnlimitedWithoutInterval(t *testing.T) {
	limiter := newMessageLimiter(RateLimitConfig{Burst: 1, RefillInterval: 0})

	for i := 0; i < 100; i++ {
		if !limiter.Allow() {
			t.Fatalf("message %d rejected by unlimited limiter", i+1)
		}
	}
}
