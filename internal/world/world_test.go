package world

import (
	"testing"
	"time"

	"clay/internal/config"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppendRoutesToScrollbackWhenFlowing(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	now := fixedClock(time.Unix(100, 0))
	w.Append(OutputLine{Text: "hi", FromServer: true}, now)

	if len(w.Scrollback) != 1 || len(w.Pending) != 0 {
		t.Fatalf("scrollback=%d pending=%d, want 1/0", len(w.Scrollback), len(w.Pending))
	}
}

func TestAppendRoutesToPendingWhenPaused(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	w.Paused = true
	now := fixedClock(time.Unix(100, 0))
	w.Append(OutputLine{Text: "hi", FromServer: true}, now)

	if len(w.Pending) != 1 || len(w.Scrollback) != 0 {
		t.Fatalf("scrollback=%d pending=%d, want 0/1", len(w.Scrollback), len(w.Pending))
	}
}

func TestAppendIncrementsUnseenWhenNotCurrent(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	now := fixedClock(time.Unix(42, 0))
	w.Append(OutputLine{Text: "hi"}, now)

	if w.UnseenLines != 1 {
		t.Fatalf("UnseenLines = %d, want 1", w.UnseenLines)
	}
	if !w.FirstUnseenAt.Equal(time.Unix(42, 0)) {
		t.Fatalf("FirstUnseenAt = %v, want 42", w.FirstUnseenAt)
	}

	w.Append(OutputLine{Text: "bye"}, fixedClock(time.Unix(99, 0)))
	if w.UnseenLines != 2 {
		t.Fatalf("UnseenLines = %d, want 2", w.UnseenLines)
	}
	if !w.FirstUnseenAt.Equal(time.Unix(42, 0)) {
		t.Fatalf("FirstUnseenAt should stay at the earliest unseen line, got %v", w.FirstUnseenAt)
	}
}

func TestAppendSkipsUnseenWhenCurrent(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	w.SetCurrent(true)
	w.Append(OutputLine{Text: "hi"}, fixedClock(time.Now()))
	if w.UnseenLines != 0 {
		t.Fatalf("UnseenLines = %d, want 0 for the current world", w.UnseenLines)
	}
}

func TestMarkSeenClearsBothCounters(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	w.Append(OutputLine{Text: "hi"}, fixedClock(time.Unix(1, 0)))
	w.MarkSeen()
	if w.UnseenLines != 0 {
		t.Fatalf("UnseenLines = %d, want 0", w.UnseenLines)
	}
	if !w.FirstUnseenAt.IsZero() {
		t.Fatalf("FirstUnseenAt = %v, want zero", w.FirstUnseenAt)
	}
}

func TestAppendPartialThenFinalize(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	now := fixedClock(time.Unix(1, 0))
	w.AppendPartial("login: ", true, now)
	if len(w.Scrollback) != 1 || w.Partial == nil {
		t.Fatalf("expected one partial line in scrollback")
	}

	w.AppendPartial("login: foo", true, now)
	if len(w.Scrollback) != 1 || w.Scrollback[0].Text != "login: foo" {
		t.Fatalf("continuation should update in place, got %+v", w.Scrollback)
	}

	w.FinalizePartial()
	if w.Partial != nil {
		t.Fatalf("FinalizePartial should clear the partial pointer")
	}
	if len(w.Scrollback) != 1 {
		t.Fatalf("finalize should not duplicate the line")
	}
}

func TestResetForDisconnectPreservesScrollback(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	w.Append(OutputLine{Text: "hi"}, fixedClock(time.Unix(1, 0)))
	w.Paused = true
	w.Connected = true
	w.SetPrompt("> ")
	gen := w.Generation

	w.ResetForDisconnect()

	if len(w.Scrollback) != 1 {
		t.Fatalf("scrollback should survive disconnect")
	}
	if w.Connected || w.Paused || w.Prompt != "" {
		t.Fatalf("connection-scoped state should be cleared")
	}
	if w.Generation != gen+1 {
		t.Fatalf("Generation = %d, want %d", w.Generation, gen+1)
	}
}

func TestDiagnosticBypassesPauseRouting(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	w.Paused = true
	w.AppendDiagnostic("connection refused", time.Unix(1, 0))
	if len(w.Scrollback) != 1 {
		t.Fatalf("diagnostics should land in scrollback even while paused")
	}
	if len(w.Pending) != 0 {
		t.Fatalf("diagnostics should never enter pending")
	}
}

// TestAppendFinalizesScrollbackPartialInPlace covers the reader's actual
// path for a fragmented line: a partial read followed by a finalized
// Append for the same line must not duplicate it (§4.3.3).
func TestAppendFinalizesScrollbackPartialInPlace(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	now := fixedClock(time.Unix(1, 0))

	w.AppendPartial("You see ", true, now)
	w.Append(OutputLine{Text: "You see a sword.", FromServer: true}, now)

	if len(w.Scrollback) != 1 {
		t.Fatalf("scrollback = %d lines, want 1: %+v", len(w.Scrollback), w.Scrollback)
	}
	if w.Scrollback[0].Text != "You see a sword." {
		t.Fatalf("scrollback[0] = %q, want %q", w.Scrollback[0].Text, "You see a sword.")
	}
	if w.Partial != nil {
		t.Fatalf("Append should clear the partial pointer")
	}
}

// TestAppendFinalizesPendingPartialInPlace is the same case while paused,
// where the partial lives in Pending instead of Scrollback.
func TestAppendFinalizesPendingPartialInPlace(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	w.Paused = true
	now := fixedClock(time.Unix(1, 0))

	w.AppendPartial("You see ", true, now)
	w.Append(OutputLine{Text: "You see a sword.", FromServer: true}, now)

	if len(w.Pending) != 1 || len(w.Scrollback) != 0 {
		t.Fatalf("pending=%d scrollback=%d, want 1/0", len(w.Pending), len(w.Scrollback))
	}
	if w.Pending[0].Text != "You see a sword." {
		t.Fatalf("pending[0] = %q, want %q", w.Pending[0].Text, "You see a sword.")
	}
}

func TestDropPartialRemovesScrollbackLine(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	now := fixedClock(time.Unix(1, 0))
	w.AppendPartial("login: ", true, now)

	w.DropPartial()

	if len(w.Scrollback) != 0 {
		t.Fatalf("scrollback = %d lines, want 0 after DropPartial", len(w.Scrollback))
	}
	if w.Partial != nil {
		t.Fatalf("DropPartial should clear the partial pointer")
	}
}

func TestDropPartialRemovesPendingLine(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	w.Paused = true
	now := fixedClock(time.Unix(1, 0))
	w.AppendPartial("login: ", true, now)

	w.DropPartial()

	if len(w.Pending) != 0 {
		t.Fatalf("pending = %d lines, want 0 after DropPartial", len(w.Pending))
	}
}

func TestDropPartialNoopWithoutPartial(t *testing.T) {
	w := New(config.WorldSettings{Name: "Test"})
	w.DropPartial() // must not panic when nothing is in flight
}
