package autologin

import (
	"testing"

	"clay/internal/config"
)

func TestConnectModeSendsOnConnected(t *testing.T) {
	m := New(config.WorldSettings{AutoLoginMode: config.AutoLoginConnect, Username: "hero", Password: "secret"})
	a := m.OnConnected()
	if a.Send != "connect hero secret\n" || !a.Done {
		t.Fatalf("OnConnected() = %+v", a)
	}
	if !m.Done() {
		t.Fatalf("expected Done() after a single Connect-mode send")
	}
}

func TestConnectModeIgnoresPromptBoundaries(t *testing.T) {
	m := New(config.WorldSettings{AutoLoginMode: config.AutoLoginConnect, Username: "hero", Password: "secret"})
	a := m.OnPromptBoundary()
	if a.Send != "" {
		t.Fatalf("Connect-mode should not react to prompt boundaries, got %+v", a)
	}
}

func TestPromptModeSendsUserThenPassword(t *testing.T) {
	m := New(config.WorldSettings{AutoLoginMode: config.AutoLoginPrompt, Username: "hero", Password: "secret"})

	a1 := m.OnPromptBoundary()
	if a1.Send != "hero\n" || !a1.ConsumePrompt || a1.Done {
		t.Fatalf("first prompt = %+v", a1)
	}
	a2 := m.OnPromptBoundary()
	if a2.Send != "secret\n" || !a2.ConsumePrompt || !a2.Done {
		t.Fatalf("second prompt = %+v", a2)
	}
}

func TestMOOPromptModeResendsUserOnThirdPrompt(t *testing.T) {
	m := New(config.WorldSettings{AutoLoginMode: config.AutoLoginMOOPrompt, Username: "hero", Password: "secret"})

	a1 := m.OnPromptBoundary()
	a2 := m.OnPromptBoundary()
	a3 := m.OnPromptBoundary()

	if a1.Send != "hero\n" || a2.Send != "secret\n" || a3.Send != "hero\n" {
		t.Fatalf("sequence = %q, %q, %q", a1.Send, a2.Send, a3.Send)
	}
	if !a3.Done {
		t.Fatalf("expected Done after the third MOO_Prompt boundary")
	}
}

func TestEnabledRequiresBothCredentials(t *testing.T) {
	if Enabled(config.WorldSettings{Username: "hero"}) {
		t.Fatalf("should require a password too")
	}
	if !Enabled(config.WorldSettings{Username: "hero", Password: "secret"}) {
		t.Fatalf("should be enabled with both credentials set")
	}
}
