package reload

import (
	"clay/internal/world"
)

// ToWorldBlob captures a world's persisted state for the save phase
// (§4.11 step 1). Auto-login is always disabled in the blob; it never
// fires for restored worlds (§4.11 step 7).
func ToWorldBlob(w *world.World) WorldBlob {
	blob := WorldBlob{
		Settings:        w.Settings,
		Scrollback:      toLineBlobs(w.Scrollback),
		Pending:         toLineBlobs(w.Pending),
		ScrollOffset:    w.ScrollOffset,
		Prompt:          w.Prompt,
		UnseenLines:     w.UnseenLines,
		ProxyPID:        w.ProxyPID,
		ProxySocketPath: w.ProxySocketPath,
	}
	if w.UnseenLines > 0 {
		t := w.FirstUnseenAt
		blob.FirstUnseenAt = &t
	}
	if w.RawFD >= 0 {
		fd := w.RawFD
		blob.FD = &fd
	}
	return blob
}

func toLineBlobs(lines []world.OutputLine) []LineBlob {
	out := make([]LineBlob, len(lines))
	for i, l := range lines {
		out[i] = LineBlob{Text: l.Text, Timestamp: l.Timestamp, FromServer: l.FromServer, Gagged: l.Gagged}
	}
	return out
}

// FromWorldBlob recreates a World's non-connection state from a blob.
// The caller is responsible for the connection-specific restore steps
// (§4.11 steps 3-5: adopting FDs, reopening proxy sockets, or giving up
// on direct-TLS worlds) and for running the consistency sweep below
// afterward.
func FromWorldBlob(blob WorldBlob) *world.World {
	w := world.New(blob.Settings)
	w.Scrollback = fromLineBlobs(blob.Scrollback)
	w.Pending = fromLineBlobs(blob.Pending)
	w.ScrollOffset = blob.ScrollOffset
	w.Prompt = blob.Prompt
	w.UnseenLines = blob.UnseenLines
	if blob.FirstUnseenAt != nil {
		w.FirstUnseenAt = *blob.FirstUnseenAt
	}
	w.ProxyPID = blob.ProxyPID
	w.ProxySocketPath = blob.ProxySocketPath
	w.AutoLoginArmed = false
	return w
}

func fromLineBlobs(blobs []LineBlob) []world.OutputLine {
	out := make([]world.OutputLine, len(blobs))
	for i, b := range blobs {
		out[i] = world.OutputLine{Text: b.Text, Timestamp: b.Timestamp, FromServer: b.FromServer, Gagged: b.Gagged}
	}
	return out
}

// ConsistencySweep enforces §4.11 step 6 and the §3 invariant: any world
// marked Connected without a usable command channel (hasSink false) is
// forced to disconnected, and its pending queue/paused flag are cleared.
func ConsistencySweep(w *world.World, hasSink bool) {
	if w.Connected && !hasSink {
		w.ResetForDisconnect()
	}
}
