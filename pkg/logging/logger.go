package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category represents the subsystem generating the log
type Category string

const (
	CategoryTurn          Category = "turn"
	CategoryIntent        Category = "intent"
	CategoryClarification Category = "clarification"
	CategoryTool          Category = "tool"
	CategoryModel         Category = "model"
	CategoryPipeline      Category = "pipeline"
	CategorySession       Category = "session"
)

// serverLog collects events that belong to no session.
const serverLog = "server"

// Event represents a structured log event
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Category  Category       `json:"category"`
	EventType string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Logger writes events to <dir>/sessions/<session id>.jsonl and copies
// errors to <dir>/errors.jsonl. Session files are opened on first use.
type Logger struct {
	baseDir   string
	files     map[string]*os.File
	errorFile *os.File
	mu        sync.Mutex
	minLevel  Level
}

// NewLogger creates the log directory layout under baseDir.
func NewLogger(baseDir string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	errorFile, err := os.OpenFile(
		filepath.Join(baseDir, "errors.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	return &Logger{
		baseDir:   baseDir,
		files:     make(map[string]*os.File),
		errorFile: errorFile,
		minLevel:  LevelInfo,
	}, nil
}

// SetMinLevel sets the minimum log level
func (l *Logger) SetMinLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SessionPath returns the file a session's events go to.
func (l *Logger) SessionPath(sessionID string) string {
	return filepath.Join(l.baseDir, "sessions", sessionFileName(sessionID)+".jsonl")
}

// Log writes an event to appropriate destinations
func (l *Logger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if !l.shouldLog(event.Level) {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	f, err := l.sessionFileLocked(event.SessionID)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write to session log: %w", err)
	}

	if event.Level == LevelError && l.errorFile != nil {
		if _, err := l.errorFile.Write(data); err != nil {
			return fmt.Errorf("failed to write to error log: %w", err)
		}
	}
	return nil
}

func (l *Logger) sessionFileLocked(sessionID string) (*os.File, error) {
	name := sessionFileName(sessionID)
	if f, ok := l.files[name]; ok {
		return f, nil
	}
	f, err := os.OpenFile(
		filepath.Join(l.baseDir, "sessions", name+".jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}
	l.files[name] = f
	return f, nil
}

// CloseSession closes a session's file; later events reopen it.
func (l *Logger) CloseSession(sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := sessionFileName(sessionID)
	f, ok := l.files[name]
	if !ok {
		return nil
	}
	delete(l.files, name)
	return f.Close()
}

// sessionFileName keeps ids from escaping the sessions directory.
func sessionFileName(sessionID string) string {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return serverLog
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, id)
}

// shouldLog checks if event should be logged based on level
func (l *Logger) shouldLog(level Level) bool {
	levels := map[Level]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.minLevel]
}

// Info logs an info event
func (l *Logger) Info(sessionID string, category Category, eventType, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelInfo,
		Category:  category,
		EventType: eventType,
		SessionID: sessionID,
		Message:   message,
		Details:   details,
	})
}

// Error logs an error event
func (l *Logger) Error(sessionID string, category Category, eventType, message string, details map[string]any) error {
	return l.Log(Event{
		Level:     LevelError,
		Category:  category,
		EventType: eventType,
		SessionID: sessionID,
		Message:   message,
		Details:   details,
	})
}

// Close closes all log files
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for name, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.files, name)
	}
	if l.errorFile != nil {
		if err := l.errorFile.Close(); err != nil {
			errs = append(errs, err)
		}
		l.errorFile = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing log files: %v", errs)
	}
	return nil
}

// ReadRecentEvents reads the last count events from a JSONL log
func ReadRecentEvents(logPath string, count int) ([]Event, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer file.Close()

	var events []Event
	decoder := json.NewDecoder(file)
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			break
		}
		events = append(events, event)
	}

	if count > 0 && len(events) > count {
		events = events[len(events)-count:]
	}
	return events, nil
}
