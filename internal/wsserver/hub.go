package wsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"clay/internal/orchestrator"
)

// writeDeadline is the maximum time allowed for a single WebSocket write
// to complete before the connection is considered dead.
const writeDeadline = 5 * time.Second

// readDeadline is the maximum time the server waits for read activity
// (including pongs) before considering a viewer connection dead.
const readDeadline = 90 * time.Second

// pingInterval is how often the server pings each viewer; readDeadline
// allows roughly three missed pings before the connection is dropped.
const pingInterval = 30 * time.Second

// maxReadMessageSize bounds a single inbound viewer message.
const maxReadMessageSize = 32 * 1024

var wsUpgrader = websocket.Upgrader{
	// The hub binds to 127.0.0.1 by default; origin checks are redundant
	// for a local companion server but kept permissive for embedders that
	// front it with their own reverse proxy.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
}

// HubOptions configures the viewer server.
type HubOptions struct {
	// Addr is the listen address, e.g. "127.0.0.1:4567". Use ":0" or a
	// "host:0" form for an OS-assigned port.
	Addr string
}

// viewerConn is one attached remote viewer. writeMu serializes writes to
// conn, since gorilla/websocket does not allow concurrent writers.
type viewerConn struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Hub fans the orchestrator's world state out to any number of
// simultaneously connected WebSocket viewers (§6), and turns their
// inbound commands into orchestrator.RemoteCommandEvent values.
//
// Unlike a single-consumer pane stream, every viewer gets its own
// initial_state snapshot on attach and then the same broadcast stream as
// every other viewer; there is no connection-replaces-connection
// behavior here.
//
// Lock ordering: never hold mu while acquiring a viewerConn's writeMu.
type Hub struct {
	opts   HubOptions
	orch   *orchestrator.Orchestrator
	logger *slog.Logger

	mu      sync.RWMutex
	viewers map[string]*viewerConn

	listener net.Listener
	server   *http.Server
	url      string

	closeOnce sync.Once
}

// NewHub builds a Hub that reads world state from and submits remote
// commands to orch. The hub is not started until Start is called.
func NewHub(opts HubOptions, orch *orchestrator.Orchestrator, logger *slog.Logger) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{
		opts:    opts,
		orch:    orch,
		logger:  logger,
		viewers: make(map[string]*viewerConn),
	}
}

// Start begins listening and serving WebSocket connections at /ws. The
// context governs the HTTP server's BaseContext; Stop still must be
// called explicitly to shut the listener down.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("wsserver: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			h.logger.Error("wsserver: serve failed", "error", serveErr)
		}
	}()

	h.logger.Info("wsserver: started", "url", h.url)
	return nil
}

// Stop closes every viewer connection and shuts down the HTTP server.
// Safe to call more than once.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		viewers := h.viewers
		h.viewers = make(map[string]*viewerConn)
		h.mu.Unlock()

		for _, v := range viewers {
			h.closeConn(v, "server stopping")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}

		h.logger.Info("wsserver: stopped")
	})
	return stopErr
}

// URL returns the viewer WebSocket URL, e.g. "ws://127.0.0.1:4567/ws".
// Empty until Start has run.
func (h *Hub) URL() string { return h.url }

// ViewerCount reports the number of currently attached viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) removeViewer(id string) {
	h.mu.Lock()
	delete(h.viewers, id)
	h.mu.Unlock()
}

func (h *Hub) closeConn(v *viewerConn, reason string) {
	if err := v.conn.Close(); err != nil {
		h.logger.Debug("wsserver: connection close", "viewer", v.id, "reason", reason, "error", err)
	}
}

func (h *Hub) setWriteDeadlineOrClose(v *viewerConn) bool {
	if err := v.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.logger.Warn("wsserver: SetWriteDeadline failed, closing", "viewer", v.id, "error", err)
		h.removeViewer(v.id)
		h.closeConn(v, "SetWriteDeadline failure")
		return false
	}
	return true
}

func (h *Hub) clearWriteDeadline(v *viewerConn) {
	if err := v.conn.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("wsserver: clearWriteDeadline failed", "viewer", v.id, "error", err)
	}
}

// writeJSON serializes payload and sends it to v, applying the same
// write-deadline discipline every write path shares. On failure the
// viewer is dropped; it must reconnect.
func (h *Hub) writeJSON(v *viewerConn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("wsserver: marshal failed", "error", err)
		return
	}

	v.writeMu.Lock()
	if !h.setWriteDeadlineOrClose(v) {
		v.writeMu.Unlock()
		return
	}
	writeErr := v.conn.WriteMessage(websocket.TextMessage, data)
	h.clearWriteDeadline(v)
	v.writeMu.Unlock()

	if writeErr != nil {
		h.logger.Warn("wsserver: write failed, closing", "viewer", v.id, "error", writeErr)
		h.removeViewer(v.id)
		h.closeConn(v, "write error")
	}
}

// broadcast sends payload to every currently attached viewer.
func (h *Hub) broadcast(payload any) {
	h.mu.RLock()
	viewers := make([]*viewerConn, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		h.writeJSON(v, payload)
	}
}

// snapshot builds the initial_state payload from the orchestrator's
// current world map.
func (h *Hub) snapshot() initialStateMsg {
	names := h.orch.WorldNames()
	worlds := make([]worldSnapshot, 0, len(names))
	for _, name := range names {
		w, ok := h.orch.World(name)
		if !ok {
			continue
		}
		lines := make([]string, 0, len(w.Scrollback))
		for _, l := range w.Scrollback {
			if l.Gagged {
				continue
			}
			lines = append(lines, l.Text)
		}
		worlds = append(worlds, worldSnapshot{
			World:       name,
			Lines:       lines,
			Prompt:      w.Prompt,
			Connected:   w.Connected,
			UnseenLines: w.UnseenLines,
			Paused:      w.Paused,
			Pending:     len(w.Pending),
		})
	}
	return initialStateMsg{Type: typeInitialState, Worlds: worlds}
}

// handleWS upgrades the request and registers a new viewer. Any number
// of viewers may be attached simultaneously; none displaces another.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("wsserver: upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		h.logger.Warn("wsserver: initial SetReadDeadline failed", "error", err)
		conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	v := &viewerConn{id: uuid.NewString(), conn: conn}
	h.mu.Lock()
	h.viewers[v.id] = v
	h.mu.Unlock()

	h.logger.Info("wsserver: viewer attached", "viewer", v.id, "remoteAddr", conn.RemoteAddr())
	h.writeJSON(v, h.snapshot())

	pingDone := make(chan struct{})
	go h.pingLoop(v, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("wsserver: handleWS recovered", "panic", rec, "stack", string(debug.Stack()))
		}
		close(pingDone)
		h.removeViewer(v.id)
		h.closeConn(v, "read pump exit")
		h.logger.Info("wsserver: viewer detached", "viewer", v.id)
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("wsserver: read error", "viewer", v.id, "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.handleInbound(v, msg)
	}
}

func (h *Hub) pingLoop(v *viewerConn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("wsserver: pingLoop recovered", "panic", rec, "stack", string(debug.Stack()))
			h.removeViewer(v.id)
			h.closeConn(v, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			v.writeMu.Lock()
			if !h.setWriteDeadlineOrClose(v) {
				v.writeMu.Unlock()
				return
			}
			pingErr := v.conn.WriteMessage(websocket.PingMessage, nil)
			h.clearWriteDeadline(v)
			v.writeMu.Unlock()

			if pingErr != nil {
				h.logger.Debug("wsserver: ping failed", "viewer", v.id, "error", pingErr)
				h.removeViewer(v.id)
				h.closeConn(v, "ping failure")
				return
			}
		}
	}
}

// handleInbound parses one viewer message and submits the corresponding
// RemoteCommandEvent to the orchestrator. Unknown types and malformed
// payloads are reported back to the sender, not fatal to the connection.
func (h *Hub) handleInbound(v *viewerConn, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(v, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	var msg orchestrator.RemoteMsg
	switch env.Type {
	case typeSendCommand:
		var m sendCommandMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			h.sendError(v, fmt.Sprintf("invalid send_command: %s", err))
			return
		}
		msg = orchestrator.SendCommandMsg{World: m.World, All: m.All, NoTerminator: m.NoTerminator, Text: m.Text}
	case typeMarkWorldSeen:
		var m markWorldSeenMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			h.sendError(v, fmt.Sprintf("invalid mark_world_seen: %s", err))
			return
		}
		msg = orchestrator.MarkWorldSeenMsg{World: m.World}
	case typeReleasePending:
		var m releasePendingMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			h.sendError(v, fmt.Sprintf("invalid release_pending: %s", err))
			return
		}
		msg = orchestrator.ReleasePendingMsg{World: m.World, Count: m.Count}
	case typeUpdateViewState:
		var m updateViewStateMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			h.sendError(v, fmt.Sprintf("invalid update_view_state: %s", err))
			return
		}
		msg = orchestrator.UpdateViewStateMsg{World: m.World, VisibleLines: m.VisibleLines}
	default:
		h.sendError(v, fmt.Sprintf("unknown message type %q", env.Type))
		return
	}

	h.orch.Submit(orchestrator.RemoteCommandEvent{ViewerID: v.id, Msg: msg})
}

func (h *Hub) sendError(v *viewerConn, message string) {
	h.writeJSON(v, errorMsg{Type: typeErrorMsg, Message: message})
}

// The following methods implement orchestrator.Broadcaster by fanning
// each call out to every attached viewer as a JSON message.

func (h *Hub) WorldConnected(world string) {
	h.broadcast(worldConnectedMsg{Type: typeWorldConnected, World: world})
}

func (h *Hub) WorldDisconnected(world, reason string) {
	h.broadcast(worldDisconnectedMsg{Type: typeWorldDisconnect, World: world, Reason: reason})
}

func (h *Hub) ServerData(world, text string, ts time.Time) {
	h.broadcast(serverDataMsg{Type: typeServerData, World: world, Text: text, Ts: ts})
}

func (h *Hub) PromptUpdate(world, prompt string) {
	h.broadcast(promptUpdateMsg{Type: typePromptUpdate, World: world, Prompt: prompt})
}

func (h *Hub) UnseenCleared(world string) {
	h.broadcast(unseenClearedMsg{Type: typeUnseenCleared, World: world})
}

func (h *Hub) UnseenUpdate(world string, count int, firstUnseenAt time.Time) {
	h.broadcast(unseenUpdateMsg{Type: typeUnseenUpdate, World: world, Count: count, FirstUnseenAt: firstUnseenAt})
}

func (h *Hub) ActivityUpdate(world string, lastReceive time.Time) {
	h.broadcast(activityUpdateMsg{Type: typeActivityUpdate, World: world, LastReceive: lastReceive})
}

func (h *Hub) PendingReleased(world string, count int) {
	h.broadcast(pendingReleasedMsg{Type: typePendingReleased, World: world, Count: count})
}
