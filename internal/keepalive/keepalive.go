// Package keepalive implements the per-world idle keepalive scheduler
// (C9): after 5 minutes with no outbound bytes sent and no inbound bytes
// received, emit a NOP, a custom command, or a generic idler probe.
package keepalive

import (
	"time"

	"github.com/google/uuid"

	"clay/internal/config"
	"clay/internal/telnet"
)

// Interval is the idle threshold before a keepalive fires (§4.9).
const Interval = 5 * time.Minute

// Payload is what the caller should write to the world's outbound sink.
type Payload []byte

// NOPPayload is the two-byte IAC NOP sequence.
var NOPPayload = Payload{telnet.IAC, telnet.NOP}

// Scheduler decides when a world's keepalive should fire and builds the
// payload to send. It holds no goroutine of its own; the orchestrator's
// ~1Hz tick drives it (§4.7).
type Scheduler struct {
	mode    config.KeepaliveMode
	custom  string
	sawIAC  bool
	newUUID func() string
}

// New creates a scheduler for a world's keepalive settings.
func New(settings config.WorldSettings) *Scheduler {
	return &Scheduler{
		mode:   settings.KeepaliveMode,
		custom: settings.CustomKeepaliveCommand,
		newUUID: func() string {
			return uuid.NewString()
		},
	}
}

// ObserveIAC records that the remote peer has used Telnet IAC at least
// once; keepalives are only emitted for such peers (§4.9).
func (s *Scheduler) ObserveIAC() {
	s.sawIAC = true
}

// ShouldFire reports whether a keepalive is due, given the last send and
// receive times and the current time.
func (s *Scheduler) ShouldFire(lastSend, lastReceive, now time.Time) bool {
	if !s.sawIAC {
		return false
	}
	idleSince := lastSend
	if lastReceive.After(idleSince) {
		idleSince = lastReceive
	}
	return now.Sub(idleSince) >= Interval
}

// Build constructs the payload for the configured keepalive variant. For
// Generic, the inbound line-assembler filters the echoed response by the
// idler prefix/suffix (internal/decoder).
func (s *Scheduler) Build() Payload {
	switch s.mode {
	case config.KeepaliveCustom:
		return Payload(s.custom + "\n")
	case config.KeepaliveGeneric:
		token := s.newUUID()
		return Payload("help commands ###_idler_message_" + token + "_###\n")
	default:
		return NOPPayload
	}
}
