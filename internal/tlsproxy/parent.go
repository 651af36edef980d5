package tlsproxy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"clay/internal/clayerr"
)

// Handle is a running proxy child, as seen from the main process.
type Handle struct {
	PID        int
	SocketPath string
}

// SpawnTimeout bounds how long Spawn waits for the child's socket to
// appear before giving up (§4.1 "bounded timeout").
const SpawnTimeout = 5 * time.Second

// Spawn forks the clay-tlsproxy child for one TLS-enabled world and
// waits for its control socket to appear, using fsnotify instead of
// polling Stat (per the domain stack wiring).
func Spawn(ctx context.Context, logger *slog.Logger, mainPID int, worldName, host string, port int) (*Handle, error) {
	socketPath := SocketPath(mainPID, worldName)
	dir := filepath.Dir(socketPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, clayerr.Wrap(clayerr.TransientConnection, fmt.Errorf("tlsproxy: create watcher: %w", err))
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return nil, clayerr.Wrap(clayerr.TransientConnection, fmt.Errorf("tlsproxy: watch %s: %w", dir, err))
	}

	exePath, err := selfExePath()
	if err != nil {
		return nil, clayerr.Wrap(clayerr.TransientConnection, fmt.Errorf("tlsproxy: resolve self exe: %w", err))
	}

	cmd := exec.Command(exePath, "-tlsproxy-child",
		"-socket", socketPath,
		"-host", host,
		"-port", fmt.Sprintf("%d", port),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, clayerr.Wrap(clayerr.TransientConnection, fmt.Errorf("tlsproxy: spawn child: %w", err))
	}

	deadline := time.NewTimer(SpawnTimeout)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil, clayerr.Wrap(clayerr.TransientConnection, fmt.Errorf("tlsproxy: watcher closed before socket appeared"))
			}
			if ev.Name == socketPath && (ev.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				logger.Info("[tlsproxy] child ready", "pid", cmd.Process.Pid, "socket", socketPath)
				return &Handle{PID: cmd.Process.Pid, SocketPath: socketPath}, nil
			}
		case err := <-watcher.Errors:
			return nil, clayerr.Wrap(clayerr.TransientConnection, fmt.Errorf("tlsproxy: watcher error: %w", err))
		case <-deadline.C:
			cmd.Process.Kill()
			return nil, clayerr.Wrap(clayerr.TransientConnection, fmt.Errorf("tlsproxy: child did not create socket within %s", SpawnTimeout))
		case <-ctx.Done():
			cmd.Process.Kill()
			return nil, clayerr.Wrap(clayerr.TransientConnection, ctx.Err())
		}
	}
}

// IsAlive reports whether the proxy process is still running, by
// sending it signal 0 (§4.10 "monitors the child by socket liveness";
// this is a cheap secondary check alongside the socket-read failure
// that's the primary signal).
func IsAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func selfExePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return exe, nil
}
