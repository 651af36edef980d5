package orchestrator

import (
	"fmt"
	"os"
	"sync"
)

// logSink is a world's optional per-connection transcript file. §5
// requires the log file be accessed via a mutex with whole-line appends;
// §7's Local-IO kind disables logging for the connection rather than
// failing the connection itself.
type logSink struct {
	mu sync.Mutex
	f  *os.File
}

func openLogSink(path string) (*logSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open log %s: %w", path, err)
	}
	return &logSink{f: f}, nil
}

func (s *logSink) writeLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.f, line)
}

func (s *logSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Close()
}
