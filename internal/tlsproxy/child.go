package tlsproxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
)

// RunChild is the TLS proxy child process's main loop. It dials the real
// MUD server over TLS, listens on socketPath, and ferries bytes
// bidirectionally between the TLS session and whatever connects to the
// socket (the main process, or the restored main process after reload).
// It returns when the socket listener closes or ctx is cancelled.
func RunChild(ctx context.Context, logger *slog.Logger, socketPath, host string, port int) error {
	os.Remove(socketPath) // a stale socket from a crashed prior run

	tlsConn, err := tls.Dial("tcp", fmt.Sprintf("%s:%d", host, port), &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("tlsproxy: dial %s:%d: %w", host, port, err)
	}
	defer tlsConn.Close()

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("tlsproxy: listen %s: %w", socketPath, err)
	}
	defer ln.Close()
	defer os.Remove(socketPath)

	logger.Info("[tlsproxy] listening", "socket", socketPath, "host", host, "port", port)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tlsproxy: accept: %w", err)
		}
		relay(logger, conn, tlsConn)
		// The main process reconnects across reload; once it detects the
		// socket is gone (child exited) it gives up. We serve exactly one
		// relay session at a time, matching "one main process" ownership.
	}
}

// relay ferries bytes bidirectionally between the socket connection and
// the TLS session until either side closes.
func relay(logger *slog.Logger, sock net.Conn, tlsConn *tls.Conn) {
	defer sock.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(tlsConn, sock)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(sock, tlsConn)
		done <- struct{}{}
	}()
	<-done
	logger.Info("[tlsproxy] relay session ended")
}
