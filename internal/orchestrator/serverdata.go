package orchestrator

import (
	"clay/internal/trigger"
	"clay/internal/world"
)

// handleServerData applies one reader task's decode of a single read to
// the affected world: scrollback/pending routing, more-mode transitions,
// trigger dispatch, logging, and WebSocket fanout. This is the only
// place World content is mutated from network input (§4.7, §5).
func (o *Orchestrator) handleServerData(e ServerDataEvent) {
	w, ok := o.worlds[e.World]
	if !ok || w.Generation != e.Generation {
		return // stale: world gone, or superseded by a later (dis)connect
	}

	w.LastReceiveTime = o.now()
	if e.SawIAC {
		if ka, ok := o.keepalives[e.World]; ok {
			ka.ObserveIAC()
		}
	}

	pc := o.pauseCtrls[e.World]
	log := o.logs[e.World]

	for _, line := range e.Output.Finalized {
		matches := trigger.Dispatch(o.actions, e.World, line)
		gag := false
		for _, m := range matches {
			if m.Gag {
				gag = true
			}
		}

		ts := o.now()
		w.Append(world.OutputLine{Text: line, Timestamp: ts, FromServer: true, Gagged: gag}, o.now)
		if pc != nil {
			pc.OnLineAppended(w)
		}
		if log != nil {
			log.writeLine(line)
		}

		if !gag {
			o.broadcaster.ServerData(e.World, line, ts)
		}
		if w.UnseenLines > 0 {
			o.broadcaster.UnseenUpdate(e.World, w.UnseenLines, w.FirstUnseenAt)
		}
		o.broadcaster.ActivityUpdate(e.World, w.LastReceiveTime)

		for _, m := range matches {
			for _, cmd := range m.Commands {
				o.sendLine(e.World, cmd, false)
			}
		}
	}

	if e.Output.HasPartial {
		w.AppendPartial(e.Output.Partial, true, o.now)
	} else {
		w.FinalizePartial()
	}

	for _, tev := range e.Telnet {
		if tev.PromptReady {
			o.onPromptBoundary(e.World, w, tev.Prompt)
		}
	}
}

// onPromptBoundary routes a GA/EOR prompt boundary through the world's
// auto-login machine (if one is armed) before deciding whether the
// prompt is shown or consumed (§4.8).
func (o *Orchestrator) onPromptBoundary(name string, w *world.World, prompt string) {
	w.DropPartial()
	if m, armed := o.autologins[name]; armed && !m.Done() {
		action := m.OnPromptBoundary()
		if action.Send != "" {
			o.sendRaw(name, action.Send)
			w.LastSendTime = o.now()
		}
		if m.Done() {
			delete(o.autologins, name)
		}
		if action.ConsumePrompt {
			w.ClearPrompt()
			return
		}
	}
	w.SetPrompt(prompt)
	o.broadcaster.PromptUpdate(name, prompt)
}
