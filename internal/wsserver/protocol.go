// Package wsserver republishes the orchestrator's world state to remote
// viewers over WebSocket/HTTP (§6). Unlike a pane-data stream with a
// single consumer, any number of viewers may attach at once; each gets
// an initial snapshot on connect and then the same fanout of JSON
// messages every other viewer sees.
//
// # Message envelope
//
// Every message, either direction, is a JSON object with a "type"
// field identifying its shape. Outbound: initial_state, server_data,
// world_connected, world_disconnected, prompt_update, unseen_cleared,
// unseen_update, activity_update, pending_released, error. Inbound:
// send_command, mark_world_seen, release_pending, update_view_state.
package wsserver

import "time"

const (
	typeInitialState    = "initial_state"
	typeServerData      = "server_data"
	typeWorldConnected  = "world_connected"
	typeWorldDisconnect = "world_disconnected"
	typePromptUpdate    = "prompt_update"
	typeUnseenCleared   = "unseen_cleared"
	typeUnseenUpdate    = "unseen_update"
	typeActivityUpdate  = "activity_update"
	typePendingReleased = "pending_released"
	typeErrorMsg        = "error"

	typeSendCommand     = "send_command"
	typeMarkWorldSeen   = "mark_world_seen"
	typeReleasePending  = "release_pending"
	typeUpdateViewState = "update_view_state"
)

// envelope is decoded first to read Type before unmarshaling the rest of
// an inbound message into its concrete shape.
type envelope struct {
	Type string `json:"type"`
}

// worldSnapshot is one world's state as carried in initialStateMsg, the
// one-shot catch-up a freshly attached viewer needs before it starts
// receiving incremental fanout.
type worldSnapshot struct {
	World       string   `json:"world"`
	Lines       []string `json:"lines"`
	Prompt      string   `json:"prompt"`
	Connected   bool     `json:"connected"`
	UnseenLines int      `json:"unseen_lines"`
	Paused      bool     `json:"paused"`
	Pending     int      `json:"pending"`
}

type initialStateMsg struct {
	Type   string          `json:"type"`
	Worlds []worldSnapshot `json:"worlds"`
}

// serverDataMsg mirrors one line of a world's output (§6: ServerData
// {world,bytes,ts}). The wire carries decoded text, not raw bytes: the
// viewer protocol is JSON, not the teacher's binary pane-data frame.
type serverDataMsg struct {
	Type  string    `json:"type"`
	World string    `json:"world"`
	Text  string    `json:"text"`
	Ts    time.Time `json:"ts"`
}

type worldConnectedMsg struct {
	Type  string `json:"type"`
	World string `json:"world"`
}

type worldDisconnectedMsg struct {
	Type   string `json:"type"`
	World  string `json:"world"`
	Reason string `json:"reason"`
}

type promptUpdateMsg struct {
	Type   string `json:"type"`
	World  string `json:"world"`
	Prompt string `json:"prompt"`
}

type unseenClearedMsg struct {
	Type  string `json:"type"`
	World string `json:"world"`
}

type unseenUpdateMsg struct {
	Type          string    `json:"type"`
	World         string    `json:"world"`
	Count         int       `json:"count"`
	FirstUnseenAt time.Time `json:"first_unseen_at"`
}

type activityUpdateMsg struct {
	Type        string    `json:"type"`
	World       string    `json:"world"`
	LastReceive time.Time `json:"last_receive"`
}

type pendingReleasedMsg struct {
	Type  string `json:"type"`
	World string `json:"world"`
	Count int    `json:"count"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Inbound payloads. Each is unmarshaled from the same raw message bytes
// once envelope.Type has identified which shape applies.

type sendCommandMsg struct {
	World        string `json:"world"`
	All          bool   `json:"all"`
	NoTerminator bool   `json:"no_terminator"`
	Text         string `json:"text"`
}

type markWorldSeenMsg struct {
	World string `json:"world"`
}

type releasePendingMsg struct {
	World string `json:"world"`
	Count int    `json:"count"`
}

type updateViewStateMsg struct {
	World        string `json:"world"`
	VisibleLines int    `json:"visible_lines"`
}
