// Package pause implements the more-mode pause controller (C5): a
// per-world finite state machine that withholds fast-scrolling output
// from the viewport until the user releases it.
package pause

import "clay/internal/world"

// State is one of the four observable more-mode states (§4.5).
type State int

const (
	Flowing State = iota
	Paused
	Scrolled
	Releasing
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Scrolled:
		return "scrolled"
	case Releasing:
		return "releasing"
	default:
		return "flowing"
	}
}

// Controller drives more-mode transitions for one world. It reads and
// writes the world's Paused/Scrolled/LinesSincePause/Pending fields
// directly; callers own calling it from the single orchestrator mutator.
type Controller struct {
	enabled      bool
	outputHeight int
}

// New creates a controller. outputHeight is the visible line count used
// for threshold and release-size calculations.
func New(enabled bool, outputHeight int) *Controller {
	if outputHeight < 3 {
		outputHeight = 24
	}
	return &Controller{enabled: enabled, outputHeight: outputHeight}
}

// SetOutputHeight updates the viewport height used by threshold/release
// calculations, e.g. on a terminal resize or remote-viewer NAWS change.
func (c *Controller) SetOutputHeight(h int) {
	if h >= 3 {
		c.outputHeight = h
	}
}

// SetEnabled toggles whether more-mode auto-pauses at all.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// State reports the world's current more-mode state.
func (c *Controller) State(w *world.World) State {
	switch {
	case w.Paused:
		return Paused
	case w.Scrolled:
		return Scrolled
	default:
		return Flowing
	}
}

// OnLineAppended is called by the orchestrator after a non-continuation
// line has been routed into Scrollback or Pending. It evaluates the
// Flowing -> Paused transition.
func (c *Controller) OnLineAppended(w *world.World) {
	if w.Paused || !c.enabled {
		return
	}
	w.LinesSincePause++
	if w.LinesSincePause > c.outputHeight-2 {
		w.ScrollTo(0) // snap to bottom before pausing
		w.Paused = true
		w.Scrolled = false
	}
}

// OnPageUp transitions Flowing -> Scrolled when the user scrolls away
// from the bottom.
func (c *Controller) OnPageUp(w *world.World) {
	if w.IsAtBottom() {
		w.Scrolled = true
	}
}

// OnViewportReturnedToBottom transitions Scrolled -> Flowing once the
// viewport is back at the bottom and nothing is pending.
func (c *Controller) OnViewportReturnedToBottom(w *world.World) {
	if w.Scrolled && w.IsAtBottom() && len(w.Pending) == 0 {
		w.Scrolled = false
	}
}

// ReleaseOne implements Tab: release max(1, outputHeight-2) pending
// lines. Appends the released lines to Scrollback and returns them, in
// order.
func (c *Controller) ReleaseOne(w *world.World) []world.OutputLine {
	if !w.Paused || len(w.Pending) == 0 {
		return nil
	}
	n := c.outputHeight - 2
	if n < 1 {
		n = 1
	}
	if n > len(w.Pending) {
		n = len(w.Pending)
	}
	released := w.Pending[:n]
	w.Pending = w.Pending[n:]

	w.Scrollback = append(w.Scrollback, released...)
	if len(w.Pending) == 0 {
		w.Paused = false
		w.LinesSincePause = 0
	}
	return released
}

// ReleaseAll implements Esc-j / PageDown-at-bottom: drain the entire
// pending queue and return to Flowing.
func (c *Controller) ReleaseAll(w *world.World) []world.OutputLine {
	released := w.Pending
	w.Pending = nil
	w.Scrollback = append(w.Scrollback, released...)
	w.Paused = false
	w.Scrolled = false
	w.LinesSincePause = 0
	return released
}

// OnSend implements the Enter-resets-lines_since_pause rule (§4.5). It
// never releases pending on its own; that is a separate, opt-in setting
// applied by the caller via ReleaseAll when enter_releases_pending is on.
func (c *Controller) OnSend(w *world.World) {
	w.LinesSincePause = 0
}
