package orchestrator

import (
	"fmt"
	"os"

	"clay/internal/reload"
	"clay/internal/tlsproxy"
)

// handleTick runs the ~1Hz per-world health checks driven by the
// caller's ticker goroutine (§4.7, §4.9, §4.10): proxy liveness and
// keepalive scheduling.
func (o *Orchestrator) handleTick(e TickEvent) {
	for _, name := range o.order {
		w, ok := o.worlds[name]
		if !ok || !w.Connected {
			continue
		}
		if w.ProxyPID != 0 && !tlsproxy.IsAlive(w.ProxyPID) {
			o.finalizeDisconnect(name, "tls proxy process died")
			continue
		}
		ka, ok := o.keepalives[name]
		if !ok {
			continue
		}
		if ka.ShouldFire(w.LastSendTime, w.LastReceiveTime, e.Now) {
			o.sendRaw(name, string(ka.Build()))
			w.LastSendTime = e.Now
			w.LastKeepaliveTime = e.Now
		}
	}
}

// handleSignal processes a local reload/suspend/quit request (§4.11,
// §6's Ctrl+R and Ctrl+C bindings route here via Submit).
func (o *Orchestrator) handleSignal(e SignalEvent) {
	switch e.Kind {
	case SignalReloadRequest:
		if err := o.performReload(); err != nil {
			o.logger.Error("orchestrator: reload failed", "error", err)
			if w, ok := o.worlds[o.current]; ok {
				w.AppendDiagnostic(fmt.Sprintf("reload failed: %v", err), o.now())
			}
		}
		// On success performReload never returns: the process image is
		// replaced by syscall.Exec.
	case SignalSuspend:
		o.logger.Info("orchestrator: suspend signal received, ignoring")
	case SignalQuit:
		o.quitOnce.Do(func() { close(o.quitCh) })
	}
}

// performReload implements the hot-reload save/replace sequence (§4.11):
// build the restore blob, clear close-on-exec on every descriptor worth
// preserving, persist it beside the settings file, then re-exec in
// place. Only reachable paths (raw FDs and proxy sockets) are preserved;
// direct-TLS connections are dropped and reconnected fresh after
// restore, per §4.11 step 4.
func (o *Orchestrator) performReload() error {
	blob := reload.NewBlob()
	for name, w := range o.worlds {
		if w.Connected && w.RawFD >= 0 {
			if err := reload.ClearCloseOnExec(uintptr(w.RawFD)); err != nil {
				o.logger.Warn("orchestrator: clear close-on-exec failed, dropping connection from blob", "world", name, "error", err)
				w.RawFD = -1
			}
		}
		blob.Worlds[name] = reload.ToWorldBlob(w)
	}

	path := reload.DefaultPath(o.settingsPath)
	if err := reload.Save(path, blob); err != nil {
		return fmt.Errorf("orchestrator: save restore blob: %w", err)
	}

	exePath, err := reload.SelfExePath()
	if err != nil {
		return fmt.Errorf("orchestrator: resolve self exe: %w", err)
	}

	o.logger.Info("orchestrator: reloading", "exe", exePath)
	if err := reload.Exec(exePath, reload.MarkerReload, os.Args[1:]); err != nil {
		return fmt.Errorf("orchestrator: re-exec: %w", err)
	}
	return nil // unreachable on success
}
