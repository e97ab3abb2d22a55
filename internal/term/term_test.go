// ABOUTME: Tests for the pty channel: open, write, read, resize, close.

package term

import (
	"strings"
	"testing"
	"time"
)

func TestOpenAndEcho(t *testing.T) {
	ch, err := Open(Options{Command: "cat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ch.Close()

	if ch.Pid() <= 0 {
		t.Errorf("expected a live pid, got %d", ch.Pid())
	}

	if _, err := ch.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The pty echoes input; read until it shows up.
	deadline := time.Now().Add(5 * time.Second)
	var out strings.Builder
	buf := make([]byte, 1024)
	for !strings.Contains(out.String(), "hello") {
		if time.Now().After(deadline) {
			t.Fatalf("echo never arrived; got %q", out.String())
		}
		n, err := ch.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
	}
}

func TestOpenFailure(t *testing.T) {
	_, err := Open(Options{Command: "definitely-not-a-real-binary"})
	if err == nil {
		t.Fatal("expected launch failure")
	}

	_, err = Open(Options{})
	if err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestResize(t *testing.T) {
	ch, err := Open(Options{Command: "cat", Rows: 24, Cols: 80})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ch.Close()

	if err := ch.Resize(50, 132); err != nil {
		t.Fatalf("resize failed: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ch, err := Open(Options{Command: "cat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	// Reads after close terminate instead of hanging.
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		for {
			if _, err := ch.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read did not terminate after close")
	}
}

func TestTerminalEnvironment(t *testing.T) {
	// sh prints the TERM the pty launcher injected.
	ch, err := Open(Options{Command: "sh", Args: []string{"-c", "echo TERM=$TERM COLORTERM=$COLORTERM"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ch.Close()

	deadline := time.Now().Add(5 * time.Second)
	var out strings.Builder
	buf := make([]byte, 1024)
	for !strings.Contains(out.String(), "TERM=xterm-256color") ||
		!strings.Contains(out.String(), "COLORTERM=truecolor") {
		if time.Now().After(deadline) {
			t.Fatalf("expected terminal env in output, got %q", out.String())
		}
		n, err := ch.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}

	if !strings.Contains(out.String(), "TERM=xterm-256color") {
		t.Errorf("TERM not set for the child: %q", out.String())
	}
	if !strings.Contains(out.String(), "COLORTERM=truecolor") {
		t.Errorf("COLORTERM not set for the child: %q", out.String())
	}
}
