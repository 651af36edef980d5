// Package config loads and saves the per-user settings file: the world
// list, the action (trigger) list, and a handful of global behavior flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Encoding is a world's character encoding.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf8"
	EncodingLatin1 Encoding = "latin1"
	EncodingFansi  Encoding = "fansi"
)

// AutoLoginMode selects how (and whether) credentials are injected on
// fresh connect. An empty Username or Password disables auto-login
// regardless of the configured mode.
type AutoLoginMode string

const (
	AutoLoginConnect   AutoLoginMode = "connect"
	AutoLoginPrompt    AutoLoginMode = "prompt"
	AutoLoginMOOPrompt AutoLoginMode = "moo_prompt"
)

// KeepaliveMode selects the idle-keepalive variant for a world.
type KeepaliveMode string

const (
	KeepaliveNOP     KeepaliveMode = "nop"
	KeepaliveCustom  KeepaliveMode = "custom"
	KeepaliveGeneric KeepaliveMode = "generic"
)

// MatchType selects how an action's Pattern is interpreted.
type MatchType string

const (
	MatchWildcard MatchType = "wildcard"
	MatchRegexp   MatchType = "regexp"
)

// WorldSettings is the persisted configuration for one world. Everything
// that is not settings - scrollback, counters, live connection state -
// lives in internal/world instead.
type WorldSettings struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	UseTLS   bool   `yaml:"use_tls"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	Encoding      Encoding      `yaml:"encoding"`
	AutoLoginMode AutoLoginMode `yaml:"auto_login_mode,omitempty"`
	KeepaliveMode KeepaliveMode `yaml:"keepalive_mode"`

	CustomKeepaliveCommand string `yaml:"custom_keepalive_command,omitempty"`
	LogPath                string `yaml:"log_path,omitempty"`
}

// AutoLoginEnabled reports whether both halves of a credential pair are
// present; §4.8 requires both, not just a configured mode.
func (w WorldSettings) AutoLoginEnabled() bool {
	return w.Username != "" && w.Password != ""
}

// Action is one named trigger record (§4.6).
type Action struct {
	Name        string    `yaml:"name"`
	WorldFilter string    `yaml:"world_filter,omitempty"`
	MatchType   MatchType `yaml:"match_type"`
	Pattern     string    `yaml:"pattern"`
	Commands    string    `yaml:"commands"`
	Enabled     bool      `yaml:"enabled"`
	Startup     bool      `yaml:"startup,omitempty"`
}

// Settings is the full contents of the on-disk settings file.
type Settings struct {
	Worlds  []WorldSettings `yaml:"worlds"`
	Actions []Action        `yaml:"actions"`

	MoreModeDefault      bool   `yaml:"more_mode_default"`
	EnterReleasesPending bool   `yaml:"enter_releases_pending"`
	TLSProxyEnabled      bool   `yaml:"tls_proxy_enabled"`
	WebSocketBindAddress string `yaml:"websocket_bind_address"`
	WebSocketPort        int    `yaml:"websocket_port"`
}

// Default returns the settings a process starts with when no file exists
// yet.
func Default() Settings {
	return Settings{
		Worlds:               nil,
		Actions:              nil,
		MoreModeDefault:      true,
		EnterReleasesPending: false,
		TLSProxyEnabled:      true,
		WebSocketBindAddress: "127.0.0.1",
		WebSocketPort:        4567,
	}
}

// DefaultPath returns the platform-idiomatic per-user path for the
// settings file: $XDG_CONFIG_HOME/clay/settings.yaml (or the platform
// equivalent os.UserConfigDir resolves).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "clay", "settings.yaml"), nil
}

// Load reads and parses the settings file at path. A missing file is not
// an error: the caller gets Default() back so a first run starts clean.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	settings := Default()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return settings, nil
}

// EnsureFile writes the default settings to path if nothing is there yet,
// so a fresh install has a file a user can find and edit.
func EnsureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	settings := Default()
	return settings.Save(path)
}

// Save serializes the settings and writes them atomically: encode to a
// temp file in the same directory, then rename over the target. The
// settings file is written only by the orchestrator's main task (§5), so
// the only contention Save needs to survive is a concurrent reader - an
// editor, a backup tool, a second instance briefly alive during reload.
func (s Settings) Save(path string) error {
	if err := validateConfigPath(path); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	return atomicWrite(path, data)
}

// validateConfigPath rejects an empty path, a relative path, and any path
// containing ".."; it does not restrict which directory the path is in.
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config: empty settings path")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("config: settings path %q must be absolute", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("config: settings path %q must not contain '..'", path)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("config: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}

	return renameFileWithRetry(tmpPath, path)
}

// renameFileWithRetry retries a handful of times on transient rename
// failures. A concurrent reader holding the destination file open can
// make the first attempt fail on some filesystems; the condition clears
// within milliseconds.
func renameFileWithRetry(oldPath, newPath string) error {
	const attempts = 5
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := os.Rename(oldPath, newPath); err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
			continue
		}
		return nil
	}
	return fmt.Errorf("config: rename %s to %s after %d attempts: %w", oldPath, newPath, attempts, lastErr)
}
