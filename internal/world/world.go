// Package world holds the per-world state the orchestrator mutates:
// scrollback, the pending queue, unseen/activity counters, the current
// prompt, and connection timing. A World is owned exclusively by the
// orchestrator (§4.7); nothing else may write to it.
package world

import (
	"time"

	"clay/internal/config"
)

// OutputLine is one line of world output.
type OutputLine struct {
	Text       string
	Timestamp  time.Time
	FromServer bool
	Gagged     bool
}

// World is the principal entity (§3). Field access is unsynchronized by
// design: the orchestrator is the sole mutator (§4.7, §5).
type World struct {
	Settings config.WorldSettings

	Scrollback []OutputLine
	Pending    []OutputLine

	// Partial is the not-yet-terminated line, if any. PartialInPending
	// records whether it currently lives in Pending rather than
	// Scrollback.
	Partial          *OutputLine
	PartialInPending bool

	UnseenLines   int
	FirstUnseenAt time.Time

	LinesSincePause int
	Paused          bool
	Scrolled        bool
	ScrollOffset    int

	Prompt string

	LastSendTime      time.Time
	LastReceiveTime   time.Time
	LastKeepaliveTime time.Time

	// Connected is true iff a live outbound command sink exists (§3
	// invariant: any world observed connected without one must be reset).
	Connected bool

	// Generation is bumped on every (dis)connect so in-flight events from
	// an aborted connection can be identified as stale (§4.7, §5).
	Generation uint64

	// ProxyPID and ProxySocketPath are reload breadcrumbs for TLS-proxied
	// worlds (§4.10, §4.11); zero/empty when not applicable.
	ProxyPID        int
	ProxySocketPath string

	// RawFD is the preserved file descriptor for raw-TCP or proxy-socket
	// transports; -1 when the transport does not expose one (direct TLS).
	RawFD int

	// AutoLoginArmed tracks whether the auto-login state machine should
	// run for this connection; it is false for reload-restored worlds.
	AutoLoginArmed bool

	// isCurrent is set by the orchestrator to note which world is on
	// screen, for the unseen-accounting rule in Append.
	isCurrent bool
}

// New creates a world from its persisted settings.
func New(settings config.WorldSettings) *World {
	return &World{
		Settings: settings,
		RawFD:    -1,
	}
}

// SetCurrent marks whether this world is the one currently shown to the
// user; Append consults it to decide whether to bump UnseenLines.
func (w *World) SetCurrent(current bool) {
	w.isCurrent = current
}

// IsCurrent reports the value last set by SetCurrent.
func (w *World) IsCurrent() bool {
	return w.isCurrent
}

// Append adds a finalized line. It routes to Pending while the world is
// paused, unless the line is a continuation of a partial already living
// in Scrollback (§4.4). now is injected so callers can use a fake clock
// in tests.
func (w *World) Append(line OutputLine, now func() time.Time) {
	hadPartial := w.Partial != nil
	partialInPending := w.PartialInPending
	w.clearPartial()

	switch {
	case hadPartial && partialInPending:
		w.Pending[len(w.Pending)-1] = line
	case hadPartial:
		w.Scrollback[len(w.Scrollback)-1] = line
	case w.Paused:
		w.Pending = append(w.Pending, line)
	default:
		w.Scrollback = append(w.Scrollback, line)
	}

	if !hadPartial && !w.isCurrent {
		if w.UnseenLines == 0 {
			w.FirstUnseenAt = now()
		}
		w.UnseenLines++
	}
}

// AppendPartial records or extends the in-flight partial line. Routing
// follows the same paused/continuation rule as Append.
func (w *World) AppendPartial(text string, fromServer bool, now func() time.Time) {
	if w.Partial != nil {
		w.Partial.Text = text
		if w.PartialInPending {
			w.Pending[len(w.Pending)-1] = *w.Partial
		} else {
			w.Scrollback[len(w.Scrollback)-1] = *w.Partial
		}
		return
	}

	line := OutputLine{Text: text, Timestamp: now(), FromServer: fromServer}
	w.Partial = &line
	if w.Paused {
		w.Pending = append(w.Pending, line)
		w.PartialInPending = true
	} else {
		w.Scrollback = append(w.Scrollback, line)
		w.PartialInPending = false
	}

	if !w.isCurrent {
		if w.UnseenLines == 0 {
			w.FirstUnseenAt = now()
		}
		w.UnseenLines++
	}
}

// FinalizePartial promotes the in-flight partial to a plain finalized
// line; it does not move it between Scrollback and Pending.
func (w *World) FinalizePartial() {
	w.clearPartial()
}

// DropPartial removes the in-flight partial line from wherever it was
// placed and clears it, for a GA/EOR boundary that consumes the partial
// into a prompt instead of letting it stand as output (§4.8).
func (w *World) DropPartial() {
	if w.Partial == nil {
		return
	}
	if w.PartialInPending {
		if len(w.Pending) > 0 {
			w.Pending = w.Pending[:len(w.Pending)-1]
		}
	} else if len(w.Scrollback) > 0 {
		w.Scrollback = w.Scrollback[:len(w.Scrollback)-1]
	}
	w.clearPartial()
}

func (w *World) clearPartial() {
	w.Partial = nil
	w.PartialInPending = false
}

// MarkSeen clears the unseen counters (§4.4); callers broadcast
// UnseenCleared to remote viewers after calling this.
func (w *World) MarkSeen() {
	w.UnseenLines = 0
	w.FirstUnseenAt = time.Time{}
}

// ClearPrompt empties the current prompt text.
func (w *World) ClearPrompt() {
	w.Prompt = ""
}

// SetPrompt replaces the current prompt text.
func (w *World) SetPrompt(text string) {
	w.Prompt = text
}

// IsAtBottom reports whether the viewport is scrolled to the newest line.
func (w *World) IsAtBottom() bool {
	return w.ScrollOffset == 0
}

// ScrollTo sets the viewport offset, measured in lines from the bottom.
func (w *World) ScrollTo(offset int) {
	if offset < 0 {
		offset = 0
	}
	w.ScrollOffset = offset
}

// LinesFromBottom returns the current scroll offset.
func (w *World) LinesFromBottom() int {
	return w.ScrollOffset
}

// ResetForDisconnect clears per-connection transient state while
// preserving scrollback and settings (§3 Lifecycle).
func (w *World) ResetForDisconnect() {
	w.Connected = false
	w.Pending = nil
	w.Paused = false
	w.Scrolled = false
	w.ClearPrompt()
	w.clearPartial()
	w.RawFD = -1
	w.ProxyPID = 0
	w.ProxySocketPath = ""
	w.Generation++
}

// ResetForConnect prepares timing state for a fresh or restored
// connection; auto-login is armed only for fresh connects (§4.8).
func (w *World) ResetForConnect(now time.Time, armAutoLogin bool) {
	w.Connected = true
	w.LastSendTime = now
	w.LastReceiveTime = now
	w.LastKeepaliveTime = now
	w.AutoLoginArmed = armAutoLogin
	w.Generation++
}
