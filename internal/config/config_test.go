package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Load(missing) = %+v, want %+v", got, want)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clay", "settings.yaml")

	in := Settings{
		Worlds: []WorldSettings{
			{
				Name:          "Aardwolf",
				Host:          "aardmud.org",
				Port:          4000,
				UseTLS:        false,
				Username:      "hero",
				Password:      "secret",
				Encoding:      EncodingUTF8,
				AutoLoginMode: AutoLoginConnect,
				KeepaliveMode: KeepaliveNOP,
			},
		},
		Actions: []Action{
			{
				Name:      "greet",
				MatchType: MatchWildcard,
				Pattern:   "* tells you: *",
				Commands:  "say thanks $1",
				Enabled:   true,
			},
		},
		MoreModeDefault:      true,
		EnterReleasesPending: false,
		TLSProxyEnabled:      true,
		WebSocketBindAddress: "127.0.0.1",
		WebSocketPort:        4567,
	}

	if err := in.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Worlds) != 1 || out.Worlds[0] != in.Worlds[0] {
		t.Fatalf("round-tripped worlds = %+v, want %+v", out.Worlds, in.Worlds)
	}
	if len(out.Actions) != 1 || out.Actions[0] != in.Actions[0] {
		t.Fatalf("round-tripped actions = %+v, want %+v", out.Actions, in.Actions)
	}
	if out.WebSocketPort != in.WebSocketPort {
		t.Fatalf("round-tripped port = %d, want %d", out.WebSocketPort, in.WebSocketPort)
	}
}

func TestEnsureFileIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	if err := EnsureFile(path); err != nil {
		t.Fatalf("EnsureFile (create): %v", err)
	}
	first, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	first.Worlds = append(first.Worlds, WorldSettings{Name: "Discworld"})
	if err := first.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := EnsureFile(path); err != nil {
		t.Fatalf("EnsureFile (existing): %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(second.Worlds) != 1 || second.Worlds[0].Name != "Discworld" {
		t.Fatalf("EnsureFile overwrote existing settings: %+v", second.Worlds)
	}
}

func TestWorldSettingsAutoLoginEnabled(t *testing.T) {
	tests := []struct {
		name string
		w    WorldSettings
		want bool
	}{
		{"both set", WorldSettings{Username: "u", Password: "p"}, true},
		{"missing password", WorldSettings{Username: "u"}, false},
		{"missing username", WorldSettings{Password: "p"}, false},
		{"neither", WorldSettings{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.AutoLoginEnabled(); got != tt.want {
				t.Fatalf("AutoLoginEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSaveRejectsRelativePath(t *testing.T) {
	s := Default()
	if err := s.Save("relative/settings.yaml"); err == nil {
		t.Fatalf("Save with relative path should fail")
	}
}
