// Package reload implements the hot-reload fabric (C11): serializing a
// restore blob, clearing close-on-exec on preserved descriptors,
// re-executing the binary in place, and restoring state afterward.
package reload

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clay/internal/config"
)

// CurrentVersion is the restore blob schema version this build writes
// and expects to read. §6 requires stability only across two consecutive
// builds; a version bump plus ErrSchemaMismatch is how that boundary is
// enforced rather than guessed at.
const CurrentVersion = 1

// ErrSchemaMismatch is returned by Load when the blob's Version does not
// match CurrentVersion; it maps to the Reload-fault error kind (§7).
var ErrSchemaMismatch = errors.New("reload: restore blob schema mismatch")

// LineBlob is one persisted OutputLine.
type LineBlob struct {
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"ts"`
	FromServer bool      `json:"from_server"`
	Gagged     bool      `json:"gagged,omitempty"`
}

// WorldBlob is one world's persisted state (§4.11 save phase, §6 restore
// blob contents).
type WorldBlob struct {
	Settings      config.WorldSettings `json:"settings"`
	Scrollback    []LineBlob           `json:"scrollback"`
	Pending       []LineBlob           `json:"pending"`
	ScrollOffset  int                  `json:"scroll_offset"`
	Prompt        string               `json:"prompt"`
	UnseenLines   int                  `json:"unseen_lines"`
	FirstUnseenAt *time.Time           `json:"first_unseen_at,omitempty"`

	// Connection descriptor: FD is set for a raw-TCP world; a TLS-proxied
	// world carries ProxyPID and ProxySocketPath plus the FD of its proxy
	// socket; none is set for a direct-TLS world that cannot be preserved.
	FD              *int   `json:"fd,omitempty"`
	ProxyPID        int    `json:"proxy_pid,omitempty"`
	ProxySocketPath string `json:"proxy_socket_path,omitempty"`
}

// Blob is the full restore blob (§4.11, §6): versioned, with Worlds keyed
// by world name (world names are unique per §3).
type Blob struct {
	Version int                  `json:"version"`
	Worlds  map[string]WorldBlob `json:"worlds"`
}

// NewBlob creates an empty blob stamped with the current schema version.
func NewBlob() Blob {
	return Blob{Version: CurrentVersion, Worlds: make(map[string]WorldBlob)}
}

// Save persists the blob atomically beside the settings file.
func Save(path string, blob Blob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("reload: encode blob: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("reload: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".reload-*.tmp")
	if err != nil {
		return fmt.Errorf("reload: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("reload: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("reload: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("reload: rename into place: %w", err)
	}
	return nil
}

// Load reads and validates the restore blob at path. A version mismatch
// or missing file both map to the Reload-fault error kind at the call
// site; Load itself just distinguishes "not found" from "unusable".
func Load(path string) (Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blob{}, fmt.Errorf("reload: read %s: %w", path, err)
	}
	var blob Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		return Blob{}, fmt.Errorf("reload: parse %s: %w", path, err)
	}
	if blob.Version != CurrentVersion {
		return Blob{}, fmt.Errorf("%w: got version %d, want %d", ErrSchemaMismatch, blob.Version, CurrentVersion)
	}
	return blob, nil
}

// DefaultPath returns the restore blob's well-known path, beside the
// settings file (§5: "a well-known path beside the settings file").
func DefaultPath(settingsPath string) string {
	return filepath.Join(filepath.Dir(settingsPath), "reload.blob")
}
