// Package orchestrator implements the event orchestrator (C7): the single
// cooperative consumer that owns the world map and is the only thing
// allowed to mutate it (§4.7, §5). Everything else - readers, writers,
// the terminal input loop, the WebSocket hub, the ~1Hz ticker - is a
// producer that posts an Event and never touches World state directly.
package orchestrator

import (
	"time"

	"clay/internal/decoder"
	"clay/internal/telnet"
	"clay/internal/transport"
)

// Event is one item in the orchestrator's typed event stream (§4.7).
type Event interface{ isEvent() }

// ServerDataEvent carries one reader task's decode of a single read: the
// finalized lines it produced, any still-in-flight partial, the telnet
// events observed, and whether telnet IAC appeared at all (for keepalive
// eligibility, §4.9). Generation pins this event to the connection that
// produced it; the orchestrator discards it if the world has since moved
// to a later generation (§4.7, §5).
type ServerDataEvent struct {
	World      string
	Generation uint64
	Output     decoder.Output
	Telnet     []telnet.Event
	SawIAC     bool
}

func (ServerDataEvent) isEvent() {}

// ConnectedEvent reports that a world's transport is up.
type ConnectedEvent struct {
	World        string
	Generation   uint64
	Stream       *transport.Stream
	ArmAutoLogin bool
	ProxyPID     int
	ProxySocket  string
}

func (ConnectedEvent) isEvent() {}

// ConnectFailedEvent reports that establishing a world's transport failed.
type ConnectFailedEvent struct {
	World string
	Kind  transport.ErrorKind
	Err   error
}

func (ConnectFailedEvent) isEvent() {}

// DisconnectedEvent reports that a world's reader or writer task ended.
// Generation lets the orchestrator ignore a disconnect from a connection
// attempt it has already abandoned.
type DisconnectedEvent struct {
	World      string
	Generation uint64
	Reason     string
}

func (DisconnectedEvent) isEvent() {}

// AutoLoginFireEvent is posted by a timer started on ConnectedEvent, for
// Connect-mode auto-login's fixed 500ms delay (§4.8).
type AutoLoginFireEvent struct {
	World      string
	Generation uint64
}

func (AutoLoginFireEvent) isEvent() {}

// UserInputEvent carries one line of local-terminal input, or a bare key
// whose semantic the terminal layer has already resolved to one of the
// Key* constants below.
type UserInputEvent struct {
	Text string
	Key  Key
}

func (UserInputEvent) isEvent() {}

// Key identifies a non-text keystroke of semantic interest to the core
// (§6). KeyNone means Text should be treated as a line of input instead.
type Key int

const (
	KeyNone Key = iota
	KeyPageUp
	KeyPageDown
	KeyTab
	KeyEscJ
	KeyEscW
	KeyUp
	KeyDown
	KeyCtrlR
	KeyCtrlC
)

// RemoteCommandEvent carries one message from a WebSocket viewer (§6).
type RemoteCommandEvent struct {
	ViewerID string
	Msg      RemoteMsg
}

func (RemoteCommandEvent) isEvent() {}

// RemoteMsg is one inbound WebSocket fanout message the core consumes.
type RemoteMsg interface{ isRemoteMsg() }

// SendCommandMsg mirrors a local /send: text addressed to one world (or
// all worlds, when World is empty and All is true).
type SendCommandMsg struct {
	World        string
	All          bool
	NoTerminator bool
	Text         string
}

func (SendCommandMsg) isRemoteMsg() {}

// MarkWorldSeenMsg clears a world's unseen counters from a viewer action.
type MarkWorldSeenMsg struct{ World string }

func (MarkWorldSeenMsg) isRemoteMsg() {}

// ReleasePendingMsg releases a world's paused queue; Count 0 means
// release everything (§6).
type ReleasePendingMsg struct {
	World string
	Count int
}

func (ReleasePendingMsg) isRemoteMsg() {}

// UpdateViewStateMsg reports a viewer's visible line count. Remote
// clients compute their own pause state (§6); the core neither stores nor
// uses the value, and never drives pause thresholds from it.
type UpdateViewStateMsg struct {
	World        string
	VisibleLines int
}

func (UpdateViewStateMsg) isRemoteMsg() {}

// TickEvent is the periodic (~1Hz) timer event driving keepalive checks.
type TickEvent struct{ Now time.Time }

func (TickEvent) isEvent() {}

// LogNoticeEvent carries a warning/error-level log record the process's
// structured logger observed (via internal/sessionlog's tee handler)
// into the core so it can be surfaced as a diagnostic line, the same way
// a connection failure or reload outcome is (§7 propagation policy).
type LogNoticeEvent struct{ Text string }

func (LogNoticeEvent) isEvent() {}

// SignalKind distinguishes the three process-level signals the core
// reacts to (§4.7).
type SignalKind int

const (
	SignalReloadRequest SignalKind = iota
	SignalSuspend
	SignalQuit
)

// SignalEvent carries a process-level signal.
type SignalEvent struct{ Kind SignalKind }

func (SignalEvent) isEvent() {}
