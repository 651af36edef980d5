package tlsproxy

import (
	"fmt"
	"os"
	"path/filepath"

	"clay/internal/worldutil"
)

// SocketPath returns the well-known Unix-domain socket path for a
// TLS-proxied world, per §4.10: /tmp/clay-tls-<main-pid>-<world-name>.sock.
func SocketPath(mainPID int, worldName string) string {
	name := fmt.Sprintf("clay-tls-%d-%s.sock", mainPID, worldutil.SanitizeName(worldName))
	return filepath.Join(os.TempDir(), name)
}
