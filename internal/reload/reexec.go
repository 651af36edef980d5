package reload

import (
	"fmt"
	"os"
	"strings"
	"syscall"
)

// deletedSuffix is what the kernel appends to /proc/self/exe's target
// when the running binary has been replaced or removed on disk, e.g. by
// a package manager upgrade while the process is still running.
const deletedSuffix = " (deleted)"

// Marker is the distinguishing argument that tells the restore phase it
// is running after a reload rather than a fresh start (§4.11).
type Marker string

const (
	MarkerReload Marker = "-clay-reload"
	MarkerCrash  Marker = "-clay-crash"
)

// DetectMarker reports which marker, if any, is present in args.
func DetectMarker(args []string) (Marker, bool) {
	for _, a := range args {
		switch Marker(a) {
		case MarkerReload:
			return MarkerReload, true
		case MarkerCrash:
			return MarkerCrash, true
		}
	}
	return "", false
}

// SelfExePath resolves the running executable's path from /proc/self/exe,
// stripping a trailing " (deleted)" suffix so a rebuilt-while-running
// binary still reloads cleanly (§4.11 Replace phase).
func SelfExePath() (string, error) {
	path, err := os.Readlink("/proc/self/exe")
	if err != nil {
		return "", fmt.Errorf("reload: resolve /proc/self/exe: %w", err)
	}
	path = strings.TrimSuffix(path, deletedSuffix)
	return path, nil
}

// Exec replaces the running process image with a fresh copy of exePath,
// passing marker as an extra argument so the restore phase recognizes
// this as a reload (or crash) restart rather than a fresh run.
// Preserved file descriptors must already have FD_CLOEXEC cleared.
func Exec(exePath string, marker Marker, extraArgs []string) error {
	argv := append([]string{exePath, string(marker)}, extraArgs...)
	return syscall.Exec(exePath, argv, os.Environ())
}
