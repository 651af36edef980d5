package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"clay/internal/autologin"
	"clay/internal/config"
	"clay/internal/decoder"
	"clay/internal/keepalive"
	"clay/internal/telnet"
	"clay/internal/tlsproxy"
	"clay/internal/transport"
)

// connectTimeout bounds connection establishment (§4.4: "implementation
// chooses; >=5s suffices").
const connectTimeout = 10 * time.Second

// Connect starts an asynchronous connection attempt for a known world.
// It returns immediately; completion arrives as a ConnectedEvent or
// ConnectFailedEvent.
func (o *Orchestrator) Connect(name string) error {
	w, ok := o.worlds[name]
	if !ok {
		return fmt.Errorf("orchestrator: unknown world %q", name)
	}
	if w.Connected {
		return fmt.Errorf("orchestrator: %q is already connected", name)
	}
	gen := w.Generation
	settings := w.Settings
	armAutoLogin := autologin.Enabled(settings)
	go o.dial(name, settings, gen, armAutoLogin)
	return nil
}

func (o *Orchestrator) dial(name string, ws config.WorldSettings, gen uint64, armAutoLogin bool) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var (
		stream      *transport.Stream
		err         error
		proxyPID    int
		proxySocket string
	)

	switch {
	case ws.UseTLS && o.settings.TLSProxyEnabled:
		handle, spawnErr := tlsproxy.Spawn(ctx, o.logger, os.Getpid(), ws.Name, ws.Host, ws.Port)
		if spawnErr != nil {
			o.logger.Warn("orchestrator: tls proxy spawn failed, falling back to direct TLS", "world", name, "error", spawnErr)
			stream, err = transport.DialTLS(ctx, ws.Host, ws.Port, connectTimeout)
		} else {
			proxyPID = handle.PID
			proxySocket = handle.SocketPath
			stream, err = transport.DialProxySocket(ctx, handle.SocketPath, connectTimeout)
		}
	case ws.UseTLS:
		stream, err = transport.DialTLS(ctx, ws.Host, ws.Port, connectTimeout)
	default:
		stream, err = transport.Dial(ctx, ws.Host, ws.Port, connectTimeout)
	}

	if err != nil {
		o.Submit(ConnectFailedEvent{World: name, Kind: transport.Classify(err), Err: err})
		return
	}
	o.Submit(ConnectedEvent{
		World:        name,
		Generation:   gen,
		Stream:       stream,
		ArmAutoLogin: armAutoLogin,
		ProxyPID:     proxyPID,
		ProxySocket:  proxySocket,
	})
}

func (o *Orchestrator) handleConnected(e ConnectedEvent) {
	w, ok := o.worlds[e.World]
	if !ok || w.Generation != e.Generation {
		// The world disappeared or a disconnect/abort advanced the
		// generation while this attempt was in flight (§4.7, §5).
		e.Stream.Close()
		return
	}

	now := o.now()
	w.ResetForConnect(now, e.ArmAutoLogin)
	if fd, ok := e.Stream.RawFD(); ok {
		w.RawFD = int(fd)
	} else {
		w.RawFD = -1
	}
	w.ProxyPID = e.ProxyPID
	w.ProxySocketPath = e.ProxySocket
	newGen := w.Generation

	o.streams[e.World] = e.Stream
	q := newCmdQueue()
	o.sinks[e.World] = q
	o.keepalives[e.World] = keepalive.New(w.Settings)

	if e.ArmAutoLogin {
		m := autologin.New(w.Settings)
		o.autologins[e.World] = m
		if w.Settings.AutoLoginMode == config.AutoLoginConnect {
			worldName := e.World
			time.AfterFunc(autologin.ConnectDelay, func() {
				o.Submit(AutoLoginFireEvent{World: worldName, Generation: newGen})
			})
		}
	}

	if w.Settings.LogPath != "" {
		sink, err := openLogSink(w.Settings.LogPath)
		if err != nil {
			w.AppendDiagnostic(fmt.Sprintf("could not open log file: %v", err), now)
		} else {
			o.logs[e.World] = sink
		}
	}

	codec := telnet.New(chanWriter{q})
	dec := decoder.New(w.Settings.Encoding)

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		o.runReader(e.World, e.Stream, codec, dec, newGen)
	}()
	go func() {
		defer o.wg.Done()
		o.runWriter(e.World, e.Stream, q, newGen)
	}()

	o.broadcaster.WorldConnected(e.World)
}

func (o *Orchestrator) handleConnectFailed(e ConnectFailedEvent) {
	w, ok := o.worlds[e.World]
	if !ok {
		return
	}
	w.AppendDiagnostic(fmt.Sprintf("connection failed: %v", e.Err), o.now())
}

func (o *Orchestrator) handleDisconnected(e DisconnectedEvent) {
	w, ok := o.worlds[e.World]
	if !ok || w.Generation != e.Generation {
		return
	}
	o.finalizeDisconnect(e.World, e.Reason)
}

// disconnectWorld tears down an active connection on local request (the
// "/disconnect" path). Unlike finalizeDisconnect from an I/O failure,
// this runs synchronously on the orchestrator goroutine that already
// owns the world, so no generation check is needed.
func (o *Orchestrator) disconnectWorld(name, reason string) {
	w, ok := o.worlds[name]
	if !ok || !w.Connected {
		return
	}
	o.finalizeDisconnect(name, reason)
}

func (o *Orchestrator) finalizeDisconnect(name, reason string) {
	w, ok := o.worlds[name]
	if !ok {
		return
	}
	if s, ok := o.streams[name]; ok {
		s.Close()
		delete(o.streams, name)
	}
	if q, ok := o.sinks[name]; ok {
		q.Close()
		delete(o.sinks, name)
	}
	if sink, ok := o.logs[name]; ok {
		sink.close()
		delete(o.logs, name)
	}
	delete(o.autologins, name)
	delete(o.keepalives, name)
	delete(o.proxies, name)

	w.ResetForDisconnect()
	w.AppendDiagnostic(fmt.Sprintf("disconnected: %s", reason), o.now())
	o.broadcaster.WorldDisconnected(name, reason)
}

func (o *Orchestrator) handleAutoLoginFire(e AutoLoginFireEvent) {
	w, ok := o.worlds[e.World]
	if !ok || w.Generation != e.Generation {
		return
	}
	m, ok := o.autologins[e.World]
	if !ok {
		return
	}
	action := m.OnConnected()
	if action.Send != "" {
		o.sendRaw(e.World, action.Send)
		w.LastSendTime = o.now()
	}
	if m.Done() {
		delete(o.autologins, e.World)
	}
}

// sendRaw pushes already-terminated bytes straight to a world's outbound
// queue, bypassing the /send terminator rules. Used directly for
// auto-login and keepalives; sendLine builds on it for user and
// trigger-fired commands.
func (o *Orchestrator) sendRaw(name, text string) {
	q, ok := o.sinks[name]
	if !ok {
		return
	}
	q.Push([]byte(text))
}

// sendLine writes one line of user- or trigger-originated text to a
// connected world, applying the §6 terminator rule.
func (o *Orchestrator) sendLine(name, text string, noTerminator bool) {
	w, ok := o.worlds[name]
	if !ok || !w.Connected {
		return
	}
	term := "\r\n"
	if noTerminator {
		term = ""
	}
	o.sendRaw(name, text+term)
	w.LastSendTime = o.now()
}

// runWriter owns a connected world's outbound stream half exclusively
// (§5): it is the sole consumer of the world's command queue and the
// sole writer to the stream.
func (o *Orchestrator) runWriter(name string, stream *transport.Stream, q *cmdQueue, gen uint64) {
	for {
		data, ok := q.Pop()
		if !ok {
			return
		}
		if _, err := stream.Write(data); err != nil {
			o.Submit(DisconnectedEvent{World: name, Generation: gen, Reason: err.Error()})
			return
		}
	}
}

// runReader owns a connected world's inbound stream half exclusively
// (§5): it strips Telnet framing, decodes lines, answers TTYPE/NAWS
// negotiation directly (no World state is touched by those replies),
// and posts ServerData events for everything that does need the
// orchestrator's attention.
func (o *Orchestrator) runReader(name string, stream *transport.Stream, codec *telnet.Codec, dec *decoder.Decoder, gen uint64) {
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			stripped, events := codec.Feed(buf[:n])
			for _, ev := range events {
				switch {
				case ev.TTypeRequested:
					codec.SendTType(o.term)
				case ev.NAWSRequested:
					w, h := o.Size()
					codec.SendNAWS(w, h)
				}
			}
			out := dec.Feed(stripped)
			for _, ev := range events {
				if ev.PromptReady {
					dec.ResetPartial()
				}
			}
			if len(out.Finalized) > 0 || out.HasPartial || len(events) > 0 {
				o.Submit(ServerDataEvent{
					World:      name,
					Generation: gen,
					Output:     out,
					Telnet:     events,
					SawIAC:     codec.IACSeen(),
				})
			}
		}
		if err != nil {
			o.Submit(DisconnectedEvent{World: name, Generation: gen, Reason: err.Error()})
			return
		}
	}
}
