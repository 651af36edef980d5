package reload

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ClearCloseOnExec clears FD_CLOEXEC on fd so the kernel keeps it open
// across the process replacement in the replace phase (§4.11 step 2).
// Go sets FD_CLOEXEC on every descriptor it creates by default, so this
// must run for each preserved descriptor just before re-exec.
func ClearCloseOnExec(fd uintptr) error {
	_, err := unix.FcntlInt(fd, unix.F_SETFD, 0)
	if err != nil {
		return fmt.Errorf("reload: clear close-on-exec on fd %d: %w", fd, err)
	}
	return nil
}
