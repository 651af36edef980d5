// Package transport provides the Stream abstraction C1 needs: a uniform
// read/write byte pipe over plain TCP, direct TLS, or a Unix-domain
// socket relaying a TLS-proxy child (§4.1). Only the TCP and proxy
// variants can expose a raw file descriptor for hot reload.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"clay/internal/clayerr"
)

// ErrorKind classifies a failed connection attempt (§4.1).
type ErrorKind int

const (
	ErrorOther ErrorKind = iota
	ErrorDNS
	ErrorRefused
	ErrorTimeout
	ErrorTLSHandshake
	ErrorProxySpawn
)

// Kind is the transport backend a Stream is built on.
type Kind int

const (
	KindTCP Kind = iota
	KindTLS
	KindProxy
)

// Stream is a uniform bidirectional byte pipe. Reader/Writer are plain
// io-style methods rather than embedding net.Conn so a proxy-socket
// Stream and a direct-TLS Stream present an identical surface to C2/C7.
type Stream struct {
	Kind Kind
	conn net.Conn
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) { return s.conn.Read(p) }

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Close closes the underlying connection.
func (s *Stream) Close() error { return s.conn.Close() }

// fileConn is implemented by *net.TCPConn and *net.UnixConn: both can
// hand back a duplicated, blocking-mode *os.File wrapping the same
// descriptor. Direct TLS (*tls.Conn) does not implement it, which is
// exactly the "cannot survive reload" property §4.1/§9 describe.
type fileConn interface {
	File() (*os.File, error)
}

// RawFD returns the underlying file descriptor and true if this Stream's
// variant exposes one (TCP and proxy; not direct TLS, per §4.1/§9). The
// returned descriptor is a dup of the connection's; internal/reload
// clears its close-on-exec flag before re-exec.
func (s *Stream) RawFD() (uintptr, bool) {
	fc, ok := s.conn.(fileConn)
	if !ok {
		return 0, false
	}
	f, err := fc.File()
	if err != nil {
		return 0, false
	}
	return f.Fd(), true
}

// Dial establishes a plain TCP connection with a bounded timeout.
func Dial(ctx context.Context, host string, port int, timeout time.Duration) (*Stream, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, clayerr.Wrap(clayerr.TransientConnection, classifyDialError(err))
	}
	return &Stream{Kind: KindTCP, conn: conn}, nil
}

// DialTLS establishes a direct TLS connection with a bounded timeout.
// The resulting Stream cannot survive hot reload (§4.1, §9).
func DialTLS(ctx context.Context, host string, port int, timeout time.Duration) (*Stream, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, clayerr.Wrap(clayerr.TransientConnection, fmt.Errorf("tls handshake: %w", err))
	}
	return &Stream{Kind: KindTLS, conn: conn}, nil
}

// DialProxySocket connects to the TLS-proxy child's Unix-domain socket
// (§4.10). The resulting Stream exposes a raw FD like a plain TCP one.
func DialProxySocket(ctx context.Context, socketPath string, timeout time.Duration) (*Stream, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, clayerr.Wrap(clayerr.ProxyDied, fmt.Errorf("connect to proxy socket %s: %w", socketPath, err))
	}
	return &Stream{Kind: KindProxy, conn: conn}, nil
}

// AdoptFD wraps an inherited, already-connected file descriptor as a
// Stream during reload restore (§4.11). kind must be KindTCP or
// KindProxy; the caller is responsible for having cleared FD_CLOEXEC
// before re-exec (internal/reload does this).
func AdoptFD(fd uintptr, kind Kind) (*Stream, error) {
	file := os.NewFile(fd, "inherited-connection")
	if file == nil {
		return nil, clayerr.Wrap(clayerr.ReloadFault, fmt.Errorf("adopt inherited fd %d: invalid descriptor", fd))
	}
	conn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return nil, clayerr.Wrap(clayerr.ReloadFault, fmt.Errorf("adopt inherited fd %d: %w", fd, err))
	}
	return &Stream{Kind: kind, conn: conn}, nil
}

func classifyDialError(err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return fmt.Errorf("connect timeout: %w", err)
	}
	return fmt.Errorf("connect: %w", err)
}

// Classify maps a dial error to the ErrorKind the orchestrator reports
// in a ConnectFailed event.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorOther
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return ErrorTimeout
	}
	return ErrorOther
}
