package tlsproxy

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Message{Type: MsgHandshake, Host: "aardmud.org", Port: 4000}
	if err := WriteMessage(&buf, want); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSocketPathIsSanitizedAndNamespacedByPID(t *testing.T) {
	path := SocketPath(4242, "My Dark MUD")
	if !strings.Contains(path, "clay-tls-4242-My_Dark_MUD.sock") {
		t.Fatalf("path = %q, want to contain the sanitized socket name", path)
	}
}

func TestIsAliveForCurrentProcess(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Fatalf("IsAlive(self) should be true")
	}
}

func TestIsAliveForImplausiblePID(t *testing.T) {
	if IsAlive(1 << 30) {
		t.Fatalf("IsAlive should be false for a PID that cannot exist")
	}
}
