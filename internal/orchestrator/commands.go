package orchestrator

import (
	"fmt"
	"strings"

	"clay/internal/command"
	"clay/internal/trigger"
	"clay/internal/worldutil"
)

func (o *Orchestrator) handleUserInput(e UserInputEvent) {
	if e.Key != KeyNone {
		o.handleKey(e.Key)
		return
	}
	cmd, err := command.Parse(e.Text, o.knownAction)
	if err != nil {
		if w, ok := o.worlds[o.current]; ok {
			w.AppendDiagnostic(err.Error(), o.now())
		}
		return
	}
	o.execCommand(o.current, cmd)
}

func (o *Orchestrator) handleRemoteCommand(e RemoteCommandEvent) {
	switch msg := e.Msg.(type) {
	case SendCommandMsg:
		cmd := command.Command{Kind: command.KindSend, AllWorlds: msg.All, TargetWorld: msg.World, NoTerminator: msg.NoTerminator, Text: msg.Text}
		context := msg.World
		if context == "" {
			context = o.current
		}
		o.execCommand(context, cmd)
	case MarkWorldSeenMsg:
		if w, ok := o.worlds[msg.World]; ok {
			w.MarkSeen()
			o.broadcaster.UnseenCleared(msg.World)
		}
	case ReleasePendingMsg:
		w, ok := o.worlds[msg.World]
		pc, pcOK := o.pauseCtrls[msg.World]
		if !ok || !pcOK {
			return
		}
		var n int
		if msg.Count <= 0 {
			n = len(pc.ReleaseAll(w))
		} else {
			for i := 0; i < msg.Count && w.Paused; i++ {
				n += len(pc.ReleaseOne(w))
			}
		}
		if n > 0 {
			o.broadcaster.PendingReleased(msg.World, n)
		}
	case UpdateViewStateMsg:
		// Remote clients compute their own pause state (§6); the core
		// does not drive pause thresholds from a viewer's visible-line
		// count. Nothing to do.
	}
}

// execCommand dispatches a parsed command in the context of contextWorld
// (the current local world, or the world a remote SendCommand named).
func (o *Orchestrator) execCommand(contextWorld string, cmd command.Command) {
	switch cmd.Kind {
	case command.KindSend:
		for _, target := range o.sendTargets(contextWorld, cmd) {
			o.sendLine(target, cmd.Text, cmd.NoTerminator)
		}
		o.afterUserSend(contextWorld)
	case command.KindDisconnect:
		o.disconnectWorld(contextWorld, "user requested disconnect")
	case command.KindReload:
		o.Submit(SignalEvent{Kind: SignalReloadRequest})
	case command.KindQuit:
		o.Submit(SignalEvent{Kind: SignalQuit})
	case command.KindWorlds:
		o.appendDiagnostic(contextWorld, o.worldsSummary())
	case command.KindConnections:
		o.appendDiagnostic(contextWorld, o.connectionsSummary())
	case command.KindActions:
		o.appendDiagnostic(contextWorld, o.actionsSummary())
	case command.KindInvoke:
		a, ok := o.findAction(cmd.ActionName)
		if !ok {
			return
		}
		m := trigger.ManualInvoke(a, cmd.Args)
		for _, c := range m.Commands {
			o.sendLine(contextWorld, c, false)
		}
	}
}

func (o *Orchestrator) appendDiagnostic(worldName, text string) {
	if w, ok := o.worlds[worldName]; ok {
		w.AppendDiagnostic(text, o.now())
	}
}

// sendTargets resolves a /send command's destination worlds: -W for
// every world, -w<world> for one named world, else the context world.
func (o *Orchestrator) sendTargets(contextWorld string, cmd command.Command) []string {
	if cmd.AllWorlds {
		names := make([]string, len(o.order))
		copy(names, o.order)
		return names
	}
	if cmd.TargetWorld != "" {
		for _, n := range o.order {
			if worldutil.EqualFold(n, cmd.TargetWorld) {
				return []string{n}
			}
		}
		return nil
	}
	return []string{contextWorld}
}

// afterUserSend applies the Enter-resets-more-mode rule (§4.5) after a
// user- or remote-initiated send, as distinct from trigger-fired or
// auto-login-fired sends which must not disturb more-mode state.
func (o *Orchestrator) afterUserSend(name string) {
	w, ok := o.worlds[name]
	pc, pcOK := o.pauseCtrls[name]
	if !ok || !pcOK {
		return
	}
	pc.OnSend(w)
	if o.settings.EnterReleasesPending {
		released := pc.ReleaseAll(w)
		if len(released) > 0 {
			o.broadcaster.PendingReleased(name, len(released))
		}
	}
}

func (o *Orchestrator) worldsSummary() string {
	var b strings.Builder
	for _, n := range o.WorldNames() {
		w := o.worlds[n]
		status := "disconnected"
		if w.Connected {
			status = "connected"
		}
		fmt.Fprintf(&b, "%s: %s\n", n, status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) connectionsSummary() string {
	var b strings.Builder
	for _, n := range o.WorldNames() {
		w := o.worlds[n]
		if !w.Connected {
			continue
		}
		fmt.Fprintf(&b, "%s: %s:%d\n", n, w.Settings.Host, w.Settings.Port)
	}
	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return "no active connections"
	}
	return out
}

func (o *Orchestrator) actionsSummary() string {
	var b strings.Builder
	for _, a := range o.actions {
		state := "disabled"
		if a.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(&b, "%s (%s): %s\n", a.Name, state, a.Pattern)
	}
	out := strings.TrimRight(b.String(), "\n")
	if out == "" {
		return "no actions defined"
	}
	return out
}
