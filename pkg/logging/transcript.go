package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TranscriptLogger writes human-readable conversation turns to daily files
// named transcript-YYYY-MM-DD.log.
type TranscriptLogger struct {
	dir     string
	file    *os.File
	path    string
	mu      sync.Mutex
	lastDay string
	now     func() time.Time
}

// NewTranscriptLogger creates a transcript logger that writes to dir.
func NewTranscriptLogger(dir string) (*TranscriptLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	l := &TranscriptLogger{dir: dir, now: time.Now}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rotateLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

// WriteTurn appends one exchange.
func (l *TranscriptLogger) WriteTurn(sessionID, user, reply string, truncated bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Format("2006-01-02") != l.lastDay {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	if l.file == nil {
		return nil
	}

	marker := ""
	if truncated {
		marker = " [interrupted]"
	}
	_, err := fmt.Fprintf(l.file, "=== [%s] session=%s ===\nyou: %s\ncoach%s: %s\n\n",
		now.Format("15:04:05"), sessionID, user, marker, reply)
	return err
}

// Path returns the current log file path.
func (l *TranscriptLogger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Close closes the log file.
func (l *TranscriptLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *TranscriptLogger) rotateLocked() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	today := l.now().Format("2006-01-02")
	l.lastDay = today
	l.path = filepath.Join(l.dir, "transcript-"+today+".log")

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript log: %w", err)
	}
	l.file = file
	return nil
}
