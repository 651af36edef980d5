// Command clay is the composition root for the multi-world MUD client
// core: it loads settings, builds the orchestrator (C7) and its
// collaborators, starts the WebSocket viewer server (§6), drives the
// ~1Hz tick and OS signal handling, and restores state after a hot
// reload (C11). The terminal UI itself is a separate collaborator (§3)
// and is not part of this binary's concern.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"clay/internal/clayerr"
	"clay/internal/config"
	"clay/internal/orchestrator"
	"clay/internal/reload"
	"clay/internal/sessionlog"
	"clay/internal/tlsproxy"
	"clay/internal/transport"
	"clay/internal/workerutil"
	"clay/internal/wsserver"
)

// tickInterval drives the orchestrator's periodic keepalive/proxy-health
// checks (§4.7, §4.9, §4.10); the spec requires only "≥1 Hz".
const tickInterval = time.Second

// tlsProxyChildFlag is the argv[1] sentinel tlsproxy.Spawn re-execs this
// same binary with (§4.10): it re-execs exePath rather than a separate
// clay-tlsproxy binary, so that single build stays self-contained even
// when the latter isn't on PATH.
const tlsProxyChildFlag = "-tlsproxy-child"

// runTLSProxyChild implements the clay-tlsproxy child process when this
// binary is invoked in proxy mode (§4.10). cmd/clay-tlsproxy builds the
// same behavior as a standalone binary for direct invocation.
func runTLSProxyChild(args []string) {
	fs := flag.NewFlagSet(tlsProxyChildFlag, flag.ExitOnError)
	socket := fs.String("socket", "", "unix socket path to listen on")
	host := fs.String("host", "", "MUD server host to dial over TLS")
	port := fs.Int("port", 0, "MUD server port")
	fs.Parse(args)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tlsproxy.RunChild(ctx, logger, *socket, *host, *port); err != nil {
		logger.Error("clay: tls proxy child exiting", "error", err)
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == tlsProxyChildFlag {
		runTLSProxyChild(os.Args[2:])
		return
	}
	runMain(os.Args[1:])
}

func runMain(args []string) {
	marker, hasMarker := reload.DetectMarker(args)
	args = stripMarker(args)

	fs := flag.NewFlagSet("clay", flag.ExitOnError)
	settingsFlag := fs.String("settings", "", "path to the settings file (default: per-user config dir)")
	fs.Parse(args)

	settingsPath := *settingsFlag
	if settingsPath == "" {
		var err error
		settingsPath, err = config.DefaultPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, "clay: resolve settings path:", err)
			os.Exit(1)
		}
	}
	if err := config.EnsureFile(settingsPath); err != nil {
		fmt.Fprintln(os.Stderr, "clay: create default settings:", err)
		os.Exit(1)
	}
	settings, err := config.Load(settingsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "clay: load settings:", err)
		os.Exit(1)
	}

	var orch *orchestrator.Orchestrator
	logger := slog.New(sessionlog.NewTeeHandler(
		slog.NewJSONHandler(os.Stderr, nil),
		slog.LevelWarn,
		func(_ time.Time, _ slog.Level, msg string, _ string) {
			if orch != nil {
				orch.Submit(orchestrator.LogNoticeEvent{Text: msg})
			}
		},
	))

	orch, err = orchestrator.New(settings, settingsPath, logger, time.Now)
	if err != nil {
		fmt.Fprintln(os.Stderr, "clay: build orchestrator:", err)
		os.Exit(1)
	}

	hub := wsserver.NewHub(wsserver.HubOptions{
		Addr: fmt.Sprintf("%s:%d", settings.WebSocketBindAddress, settings.WebSocketPort),
	}, orch, logger)
	orch.SetBroadcaster(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := hub.Start(ctx); err != nil {
		logger.Error("clay: viewer server failed to start", "error", err)
	} else {
		logger.Info("clay: viewer server listening", "url", hub.URL())
	}
	defer hub.Stop()

	if hasMarker {
		logger.Info("clay: restoring after restart", "marker", marker)
		restoreWorlds(logger, orch, settingsPath)
	} else {
		for _, name := range orch.WorldNames() {
			if err := orch.Connect(name); err != nil {
				logger.Warn("clay: initial connect failed", "world", name, "error", err)
			}
		}
	}

	var wg sync.WaitGroup
	workerutil.RunWithPanicRecovery(ctx, "ticker", &wg, func(ctx context.Context) {
		runTicker(ctx, orch)
	}, workerutil.RecoveryOptions{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go watchSignals(ctx, sigCh, orch)

	orch.Run(ctx)
	cancel()
	wg.Wait()
}

// runTicker posts TickEvent at tickInterval until ctx is cancelled.
func runTicker(ctx context.Context, orch *orchestrator.Orchestrator) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			orch.Submit(orchestrator.TickEvent{Now: now})
		}
	}
}

// watchSignals maps OS signals to core Signal events (§4.7, §4.11):
// SIGHUP requests a hot reload, SIGINT/SIGTERM request a clean quit.
func watchSignals(ctx context.Context, sigCh <-chan os.Signal, orch *orchestrator.Orchestrator) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				orch.Submit(orchestrator.SignalEvent{Kind: orchestrator.SignalReloadRequest})
			default:
				orch.Submit(orchestrator.SignalEvent{Kind: orchestrator.SignalQuit})
				return
			}
		}
	}
}

// stripMarker removes a reload/crash marker token from args so the flag
// package never sees it; Exec always re-appends the marker ahead of the
// process's original argv[1:], including on a second consecutive reload.
func stripMarker(args []string) []string {
	out := args[:0:0]
	for _, a := range args {
		if _, ok := reload.DetectMarker([]string{a}); ok {
			continue
		}
		out = append(out, a)
	}
	return out
}

// restoreWorlds replays the save-phase blob from the previous process
// image (§4.11 steps 3-6): restore scrollback/prompt/unseen state for
// every world, then either adopt a preserved connection or fall back to
// a fresh connect attempt.
func restoreWorlds(logger *slog.Logger, orch *orchestrator.Orchestrator, settingsPath string) {
	blob, err := reload.Load(reload.DefaultPath(settingsPath))
	if err != nil {
		logger.Warn("clay: reload restore blob unusable, starting fresh", "error", clayerr.Wrap(clayerr.ReloadFault, err))
		for _, name := range orch.WorldNames() {
			orch.Connect(name)
		}
		return
	}

	for _, name := range orch.WorldNames() {
		w, ok := orch.World(name)
		if !ok {
			continue
		}
		wb, ok := blob.Worlds[name]
		if !ok {
			orch.Connect(name)
			continue
		}
		restored := reload.FromWorldBlob(wb)
		w.Scrollback = restored.Scrollback
		w.Pending = restored.Pending
		w.ScrollOffset = restored.ScrollOffset
		w.Prompt = restored.Prompt
		w.UnseenLines = restored.UnseenLines
		w.FirstUnseenAt = restored.FirstUnseenAt
		w.ProxyPID = restored.ProxyPID
		w.ProxySocketPath = restored.ProxySocketPath

		if wb.FD == nil {
			logger.Info("clay: world has no preserved connection, reconnecting", "world", name)
			orch.Connect(name)
			continue
		}

		kind := transport.KindTCP
		if wb.ProxySocketPath != "" {
			kind = transport.KindProxy
		}
		stream, err := transport.AdoptFD(uintptr(*wb.FD), kind)
		if err != nil {
			logger.Warn("clay: could not adopt preserved connection, reconnecting", "world", name, "error", err)
			orch.Connect(name)
			continue
		}
		if wb.ProxyPID != 0 && !tlsproxy.IsAlive(wb.ProxyPID) {
			logger.Warn("clay: tls proxy for world did not survive reload, reconnecting", "world", name)
			stream.Close()
			orch.Connect(name)
			continue
		}

		orch.Submit(orchestrator.ConnectedEvent{
			World:        name,
			Generation:   w.Generation,
			Stream:       stream,
			ArmAutoLogin: false,
			ProxyPID:     wb.ProxyPID,
			ProxySocket:  wb.ProxySocketPath,
		})
	}
}
