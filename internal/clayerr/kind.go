// Package clayerr classifies recoverable failures into the error kinds the
// core's propagation policy dispatches on (see spec §7). A Kind never
// replaces the underlying error; it annotates it so callers can decide
// how to surface the failure without string-matching messages.
package clayerr

import (
	"errors"
	"fmt"
)

// Kind is a coarse failure category. Distinct kinds, not distinct types:
// every domain error wraps exactly one Kind via Wrap.
type Kind int

const (
	// Unknown is the zero value; Of returns it for errors never wrapped
	// with a Kind.
	Unknown Kind = iota
	// TransientConnection covers DNS, refused, read-timeout, TLS handshake,
	// and proxy-spawn failures. Recovery: disconnect, user reconnects.
	TransientConnection
	// ProtocolFraming covers malformed Telnet subnegotiations and
	// truncated CSI at EOF. Recovery: discard the affected bytes, continue.
	ProtocolFraming
	// EncodingFault covers a byte sequence invalid under the world's
	// selected encoding. Recovery: substitute U+FFFD, no user notice.
	EncodingFault
	// LocalIO covers a log file that cannot be opened or written.
	// Recovery: disable logging for the connection.
	LocalIO
	// ReloadFault covers a missing restore blob, schema mismatch, or an
	// unusable inherited file descriptor. Recovery: start fresh.
	ReloadFault
	// ProxyDied covers the TLS proxy socket closing unexpectedly.
	// Recovery: mark the world disconnected, no silent fallback.
	ProxyDied
	// FatalInit covers the terminal failing to initialize. Not recoverable.
	FatalInit
)

func (k Kind) String() string {
	switch k {
	case TransientConnection:
		return "transient-connection"
	case ProtocolFraming:
		return "protocol-framing"
	case EncodingFault:
		return "encoding-fault"
	case LocalIO:
		return "local-io"
	case ReloadFault:
		return "reload-fault"
	case ProxyDied:
		return "proxy-died"
	case FatalInit:
		return "fatal-init"
	default:
		return "unknown"
	}
}

// kindError pairs an error with the Kind it was wrapped under.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.err)
}

func (e *kindError) Unwrap() error {
	return e.err
}

// Wrap annotates err with kind. Wrap(kind, nil) returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Of reports the Kind the error chain was wrapped with, or Unknown if
// none of the errors in the chain carry one.
func Of(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// Is reports whether err's chain carries the given Kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
