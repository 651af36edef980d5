package reload

// MaxCrashRestarts bounds consecutive crash-triggered re-execs (§4.11:
// "at most twice in succession").
const MaxCrashRestarts = 2

// CrashCounter tracks consecutive crash restarts, resetting after one
// successful user input (§4.11).
type CrashCounter struct {
	count int
}

// ShouldRestart reports whether another crash restart is permitted.
func (c *CrashCounter) ShouldRestart() bool {
	return c.count < MaxCrashRestarts
}

// RecordCrash increments the counter; call before issuing the crash
// re-exec.
func (c *CrashCounter) RecordCrash() {
	c.count++
}

// OnUserInput resets the counter after one successful user input,
// forgiving a crash that happened long ago.
func (c *CrashCounter) OnUserInput() {
	c.count = 0
}
