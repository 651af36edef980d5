package reload

import (
	"path/filepath"
	"testing"
	"time"

	"clay/internal/config"
	"clay/internal/world"
)

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reload.blob")

	blob := NewBlob()
	blob.Worlds["Aardwolf"] = WorldBlob{
		Settings:     config.WorldSettings{Name: "Aardwolf", Host: "aardmud.org", Port: 4000},
		Scrollback:   []LineBlob{{Text: "hi", Timestamp: time.Unix(1, 0)}},
		ScrollOffset: 3,
		Prompt:       "> ",
	}

	if err := Save(path, blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Version != CurrentVersion {
		t.Fatalf("Version = %d, want %d", got.Version, CurrentVersion)
	}
	w := got.Worlds["Aardwolf"]
	if w.Prompt != "> " || w.ScrollOffset != 3 || len(w.Scrollback) != 1 {
		t.Fatalf("restored world = %+v", w)
	}
}

func TestLoadRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reload.blob")

	blob := Blob{Version: CurrentVersion + 1, Worlds: map[string]WorldBlob{}}
	if err := Save(path, blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected a schema mismatch error")
	}
}

func TestWorldBlobRoundTripPreservesState(t *testing.T) {
	w := world.New(config.WorldSettings{Name: "Test"})
	w.Append(world.OutputLine{Text: "a"}, func() time.Time { return time.Unix(5, 0) })
	w.SetPrompt("> ")
	w.RawFD = 7

	blob := ToWorldBlob(w)
	restored := FromWorldBlob(blob)

	if len(restored.Scrollback) != 1 || restored.Scrollback[0].Text != "a" {
		t.Fatalf("restored scrollback = %+v", restored.Scrollback)
	}
	if restored.Prompt != "> " {
		t.Fatalf("restored prompt = %q", restored.Prompt)
	}
	if blob.FD == nil || *blob.FD != 7 {
		t.Fatalf("blob.FD = %v, want 7", blob.FD)
	}
	if restored.AutoLoginArmed {
		t.Fatalf("restored worlds must not arm auto-login (§4.11 step 7)")
	}
}

func TestConsistencySweepForcesDisconnectWithoutSink(t *testing.T) {
	w := world.New(config.WorldSettings{Name: "Test"})
	w.Connected = true
	w.Paused = true
	w.Pending = []world.OutputLine{{Text: "x"}}

	ConsistencySweep(w, false)

	if w.Connected || w.Paused || len(w.Pending) != 0 {
		t.Fatalf("expected sweep to force disconnect, got %+v", w)
	}
}

func TestConsistencySweepLeavesValidSinkAlone(t *testing.T) {
	w := world.New(config.WorldSettings{Name: "Test"})
	w.Connected = true

	ConsistencySweep(w, true)

	if !w.Connected {
		t.Fatalf("sweep should not disconnect a world with a working sink")
	}
}

func TestCrashCounterBoundedRestarts(t *testing.T) {
	var c CrashCounter
	for i := 0; i < MaxCrashRestarts; i++ {
		if !c.ShouldRestart() {
			t.Fatalf("restart %d should still be permitted", i)
		}
		c.RecordCrash()
	}
	if c.ShouldRestart() {
		t.Fatalf("restart beyond the cap should not be permitted")
	}
	c.OnUserInput()
	if !c.ShouldRestart() {
		t.Fatalf("a successful user input should reset the counter")
	}
}

func TestDetectMarker(t *testing.T) {
	m, ok := DetectMarker([]string{"clay", string(MarkerReload)})
	if !ok || m != MarkerReload {
		t.Fatalf("DetectMarker = %v, %v, want MarkerReload", m, ok)
	}
	_, ok = DetectMarker([]string{"clay"})
	if ok {
		t.Fatalf("fresh start should not detect a marker")
	}
}
