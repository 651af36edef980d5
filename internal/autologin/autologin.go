// Package autologin implements the per-world auto-login state machine
// (C8): credential injection on fresh connect, in one of three modes.
package autologin

import (
	"time"

	"clay/internal/config"
)

// Action is what the state machine wants the caller to do in response to
// an event.
type Action struct {
	// Send, if non-empty, should be written to the world's outbound sink
	// verbatim (the caller appends no extra newline beyond what's here).
	Send string
	// ConsumePrompt is true when the triggering prompt must not be
	// displayed in the input area.
	ConsumePrompt bool
	// Done is true once the state machine has nothing left to do.
	Done bool
}

// Machine drives one world's auto-login sequence. It holds only a small
// counter and is torn down on disconnect (§4.8).
type Machine struct {
	mode     config.AutoLoginMode
	username string
	password string

	promptCount int
	done        bool
}

// New creates a machine for a world. Callers must check Enabled before
// arming it; New itself does not validate credentials.
func New(settings config.WorldSettings) *Machine {
	return &Machine{
		mode:     settings.AutoLoginMode,
		username: settings.Username,
		password: settings.Password,
	}
}

// Enabled reports whether both username and password are populated
// (§4.8: auto-login "requires both username and password populated").
func Enabled(settings config.WorldSettings) bool {
	return settings.AutoLoginEnabled()
}

// OnConnected is called 500ms after a fresh Connected event fires, for
// Connect-mode machines. Prompt-driven modes ignore it.
func (m *Machine) OnConnected() Action {
	if m.done || m.mode != config.AutoLoginConnect {
		return Action{Done: m.done}
	}
	m.done = true
	return Action{Send: "connect " + m.username + " " + m.password + "\n", Done: true}
}

// ConnectDelay is the fixed delay before OnConnected fires for
// Connect-mode machines (§4.8).
const ConnectDelay = 500 * time.Millisecond

// OnPromptBoundary is called on each GA/EOR prompt boundary, for
// Prompt/MOO_Prompt-mode machines.
func (m *Machine) OnPromptBoundary() Action {
	if m.done || m.mode == config.AutoLoginConnect {
		return Action{Done: m.done}
	}
	m.promptCount++

	switch m.mode {
	case config.AutoLoginPrompt:
		switch m.promptCount {
		case 1:
			return Action{Send: m.username + "\n", ConsumePrompt: true}
		case 2:
			m.done = true
			return Action{Send: m.password + "\n", ConsumePrompt: true, Done: true}
		}
	case config.AutoLoginMOOPrompt:
		switch m.promptCount {
		case 1:
			return Action{Send: m.username + "\n", ConsumePrompt: true}
		case 2:
			return Action{Send: m.password + "\n", ConsumePrompt: true}
		case 3:
			m.done = true
			return Action{Send: m.username + "\n", ConsumePrompt: true, Done: true}
		}
	}
	m.done = true
	return Action{Done: true}
}

// Done reports whether the state machine has completed.
func (m *Machine) Done() bool {
	return m.done
}
