package orchestrator

import "time"

// ctrlCQuitWindow is how long a second Ctrl+C has to land after the
// first before it's treated as a double-press quit (§6).
const ctrlCQuitWindow = 15 * time.Second

// handleKey applies a local terminal key binding (§6). Text input that
// isn't one of these keys arrives as a UserInputEvent with Key ==
// KeyNone instead, and is parsed as a command or plain /send.
func (o *Orchestrator) handleKey(k Key) {
	name := o.current
	w, ok := o.worlds[name]
	if !ok {
		return
	}
	pc := o.pauseCtrls[name]

	switch k {
	case KeyPageUp:
		if pc != nil {
			pc.OnPageUp(w)
		}
	case KeyPageDown:
		if w.IsAtBottom() && pc != nil {
			released := pc.ReleaseAll(w)
			if len(released) > 0 {
				o.broadcaster.PendingReleased(name, len(released))
			}
		}
		if pc != nil {
			pc.OnViewportReturnedToBottom(w)
		}
	case KeyTab:
		if pc != nil {
			released := pc.ReleaseOne(w)
			if len(released) > 0 {
				o.broadcaster.PendingReleased(name, len(released))
			}
		}
	case KeyEscJ:
		if pc != nil {
			released := pc.ReleaseAll(w)
			if len(released) > 0 {
				o.broadcaster.PendingReleased(name, len(released))
			}
		}
	case KeyEscW:
		if next := o.nextWorldByPolicy(); next != "" {
			o.switchTo(next)
		}
	case KeyUp:
		if next := o.cycleWorld(-1); next != "" {
			o.switchTo(next)
		}
	case KeyDown:
		if next := o.cycleWorld(1); next != "" {
			o.switchTo(next)
		}
	case KeyCtrlR:
		o.Submit(SignalEvent{Kind: SignalReloadRequest})
	case KeyCtrlC:
		now := o.now()
		if !o.lastCtrlC.IsZero() && now.Sub(o.lastCtrlC) <= ctrlCQuitWindow {
			o.Submit(SignalEvent{Kind: SignalQuit})
			return
		}
		o.lastCtrlC = now
	}
}

// switchTo changes which world is shown locally, clearing its unseen
// counters and remembering the previous world for the Esc-w policy.
func (o *Orchestrator) switchTo(name string) {
	if name == o.current {
		return
	}
	if cur, ok := o.worlds[o.current]; ok {
		cur.SetCurrent(false)
	}
	o.prevWorld = o.current
	o.current = name
	if w, ok := o.worlds[name]; ok {
		w.SetCurrent(true)
		if w.UnseenLines > 0 {
			w.MarkSeen()
			o.broadcaster.UnseenCleared(name)
		}
	}
}

// nextWorldByPolicy implements the "unseen first" Esc-w policy (§6):
// the oldest world with pending output, else the non-current world with
// the oldest unseen activity, else the previous world, in that order.
func (o *Orchestrator) nextWorldByPolicy() string {
	var oldestPending string
	var oldestPendingAt time.Time
	for _, name := range o.WorldNames() {
		if name == o.current {
			continue
		}
		w, ok := o.worlds[name]
		if !ok || !w.Paused || len(w.Pending) == 0 {
			continue
		}
		if oldestPending == "" || w.Pending[0].Timestamp.Before(oldestPendingAt) {
			oldestPending = name
			oldestPendingAt = w.Pending[0].Timestamp
		}
	}
	if oldestPending != "" {
		return oldestPending
	}

	var best string
	var bestAt time.Time
	for _, name := range o.WorldNames() {
		if name == o.current {
			continue
		}
		w, ok := o.worlds[name]
		if !ok || w.UnseenLines == 0 {
			continue
		}
		if best == "" || w.FirstUnseenAt.Before(bestAt) {
			best = name
			bestAt = w.FirstUnseenAt
		}
	}
	if best != "" {
		return best
	}

	if o.prevWorld != "" && o.prevWorld != o.current {
		if _, ok := o.worlds[o.prevWorld]; ok {
			return o.prevWorld
		}
	}
	return ""
}

// cycleWorld returns the world dir steps away from the current one in
// alphabetical order (Up/Down bindings), wrapping around.
func (o *Orchestrator) cycleWorld(dir int) string {
	names := o.WorldNames()
	if len(names) < 2 {
		return ""
	}
	idx := -1
	for i, n := range names {
		if n == o.current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return names[0]
	}
	next := (idx + dir) % len(names)
	if next < 0 {
		next += len(names)
	}
	return names[next]
}
