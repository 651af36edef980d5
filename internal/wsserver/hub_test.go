package wsserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"clay/internal/config"
	"clay/internal/orchestrator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() config.Settings {
	return config.Settings{
		Worlds: []config.WorldSettings{
			{Name: "Alpha", Host: "alpha.example", Port: 4000, Encoding: config.EncodingUTF8},
			{Name: "Beta", Host: "beta.example", Port: 4001, Encoding: config.EncodingUTF8},
		},
	}
}

func newTestHub(t *testing.T) (*Hub, *orchestrator.Orchestrator) {
	t.Helper()
	orch, err := orchestrator.New(testSettings(), "/tmp/clay-wsserver-test/settings.yaml", discardLogger(), time.Now)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	hub := NewHub(HubOptions{Addr: "127.0.0.1:0"}, orch, discardLogger())
	orch.SetBroadcaster(hub)

	ctx, cancel := context.WithCancel(context.Background())
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		hub.Stop()
		cancel()
	})
	return hub, orch
}

func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ticker.C:
			if fn() {
				return true
			}
		case <-deadline.C:
			return false
		}
	}
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(hub.URL())
	if err != nil {
		t.Fatalf("parse hub URL %q: %v", hub.URL(), err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v, raw=%s", err, raw)
	}
	return env
}

func readInto(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal: %v, raw=%s", err, raw)
	}
}

func TestStartAssignsURL(t *testing.T) {
	hub, _ := newTestHub(t)
	if hub.URL() == "" {
		t.Fatal("URL() empty after Start")
	}
}

func TestDoubleStartFails(t *testing.T) {
	hub, _ := newTestHub(t)
	if err := hub.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	hub, _ := newTestHub(t)
	if err := hub.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got: %v", err)
	}
}

func TestConnectReceivesInitialState(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()

	var msg initialStateMsg
	readInto(t, conn, &msg)
	if msg.Type != typeInitialState {
		t.Fatalf("type = %q, want %q", msg.Type, typeInitialState)
	}
	if len(msg.Worlds) != 2 {
		t.Fatalf("Worlds = %+v, want 2 entries", msg.Worlds)
	}
}

func TestMultipleViewersBothReceiveBroadcast(t *testing.T) {
	hub, _ := newTestHub(t)
	a := dialHub(t, hub)
	defer a.Close()
	b := dialHub(t, hub)
	defer b.Close()

	readInto(t, a, &initialStateMsg{})
	readInto(t, b, &initialStateMsg{})

	if !waitForCondition(t, 2*time.Second, func() bool { return hub.ViewerCount() == 2 }) {
		t.Fatal("timed out waiting for both viewers to register")
	}

	hub.ServerData("Alpha", "hello", time.Unix(1, 0))

	var ma, mb serverDataMsg
	readInto(t, a, &ma)
	readInto(t, b, &mb)
	if ma.World != "Alpha" || ma.Text != "hello" {
		t.Fatalf("viewer A got %+v", ma)
	}
	if mb.World != "Alpha" || mb.Text != "hello" {
		t.Fatalf("viewer B got %+v", mb)
	}
}

func TestViewerDisconnectDoesNotAffectOthers(t *testing.T) {
	hub, _ := newTestHub(t)
	a := dialHub(t, hub)
	b := dialHub(t, hub)
	defer b.Close()

	readInto(t, a, &initialStateMsg{})
	readInto(t, b, &initialStateMsg{})
	waitForCondition(t, 2*time.Second, func() bool { return hub.ViewerCount() == 2 })

	a.Close()
	if !waitForCondition(t, 2*time.Second, func() bool { return hub.ViewerCount() == 1 }) {
		t.Fatal("timed out waiting for viewer count to drop to 1")
	}

	hub.ServerData("Beta", "still alive", time.Unix(2, 0))
	var m serverDataMsg
	readInto(t, b, &m)
	if m.Text != "still alive" {
		t.Fatalf("remaining viewer missed broadcast: %+v", m)
	}
}

func TestSendCommandIsAcceptedWithoutError(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	readInto(t, conn, &initialStateMsg{})

	raw := map[string]any{"type": typeSendCommand, "world": "Alpha", "text": "look"}
	payload, _ := json.Marshal(raw)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("well-formed send_command should not produce an error response")
	}
}

func TestMarkWorldSeenTriggersUnseenCleared(t *testing.T) {
	hub, orch := newTestHub(t)
	beta, ok := orch.World("Beta")
	if !ok {
		t.Fatal("Beta world missing")
	}
	beta.UnseenLines = 3
	beta.FirstUnseenAt = time.Unix(5, 0)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go orch.Run(ctx)

	conn := dialHub(t, hub)
	defer conn.Close()
	readInto(t, conn, &initialStateMsg{})

	raw := map[string]any{"type": typeMarkWorldSeen, "world": "Beta"}
	payload, _ := json.Marshal(raw)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	var m unseenClearedMsg
	readInto(t, conn, &m)
	if m.World != "Beta" {
		t.Fatalf("UnseenCleared world = %q, want Beta", m.World)
	}
}

func TestUnknownMessageTypeReturnsError(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	readInto(t, conn, &initialStateMsg{})

	raw := map[string]any{"type": "not_a_real_type"}
	payload, _ := json.Marshal(raw)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := readMsg(t, conn)
	if env.Type != typeErrorMsg {
		t.Fatalf("type = %q, want %q", env.Type, typeErrorMsg)
	}
}

func TestInvalidJSONReturnsError(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	readInto(t, conn, &initialStateMsg{})

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readMsg(t, conn)
	if env.Type != typeErrorMsg {
		t.Fatalf("type = %q, want %q", env.Type, typeErrorMsg)
	}
}

func TestPortConflictReturnsError(t *testing.T) {
	hub1, _ := newTestHub(t)
	u, _ := url.Parse(hub1.URL())

	orch, err := orchestrator.New(testSettings(), "/tmp/clay-wsserver-test/settings2.yaml", discardLogger(), time.Now)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	hub2 := NewHub(HubOptions{Addr: u.Host}, orch, discardLogger())
	if err := hub2.Start(context.Background()); err == nil {
		hub2.Stop()
		t.Fatal("expected port-conflict error")
	}
}
