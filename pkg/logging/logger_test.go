package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/odvcencio/repcoach/pkg/config"
	"github.com/odvcencio/repcoach/pkg/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		baseDir string
	}{
		{name: "existing directory", baseDir: t.TempDir()},
		{name: "creates nested directories", baseDir: filepath.Join(t.TempDir(), "nested", "path")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.baseDir)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			defer logger.Close()

			if logger.minLevel != LevelInfo {
				t.Errorf("minLevel = %v, want %v", logger.minLevel, LevelInfo)
			}
			if _, err := os.Stat(filepath.Join(tt.baseDir, "sessions")); err != nil {
				t.Errorf("sessions directory missing: %v", err)
			}
			if _, err := os.Stat(filepath.Join(tt.baseDir, "errors.jsonl")); err != nil {
				t.Errorf("errors.jsonl missing: %v", err)
			}
		})
	}
}

func TestLogRoutesBySession(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	if err := logger.Info("s1", CategoryTurn, "turn.completed", "done", map[string]any{"intent": "GREETING"}); err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if err := logger.Error("s1", CategoryTool, "tool.failed", "boom", nil); err != nil {
		t.Fatalf("Error() error = %v", err)
	}
	if err := logger.Info("s2", CategoryTurn, "turn.completed", "", nil); err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if err := logger.Info("", CategorySession, "server.started", "", nil); err != nil {
		t.Fatalf("Info() error = %v", err)
	}

	s1, err := ReadRecentEvents(logger.SessionPath("s1"), 10)
	if err != nil {
		t.Fatalf("ReadRecentEvents() error = %v", err)
	}
	if len(s1) != 2 {
		t.Fatalf("s1 events = %d, want 2", len(s1))
	}
	if s1[0].Details["intent"] != "GREETING" {
		t.Errorf("details not preserved: %+v", s1[0].Details)
	}

	errs, err := ReadRecentEvents(filepath.Join(dir, "errors.jsonl"), 10)
	if err != nil {
		t.Fatalf("ReadRecentEvents() error = %v", err)
	}
	if len(errs) != 1 || errs[0].EventType != "tool.failed" {
		t.Fatalf("errors.jsonl = %+v, want one tool.failed", errs)
	}

	if _, err := os.Stat(filepath.Join(dir, "sessions", "server.jsonl")); err != nil {
		t.Errorf("sessionless events should go to server.jsonl: %v", err)
	}
}

func TestLogRespectsMinLevel(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	logger.SetMinLevel(LevelWarn)
	_ = logger.Info("s1", CategoryTurn, "turn.completed", "", nil)
	_ = logger.Log(Event{Level: LevelWarn, Category: CategoryTurn, EventType: "turn.cancelled", SessionID: "s1"})

	events, err := ReadRecentEvents(logger.SessionPath("s1"), 0)
	if err != nil {
		t.Fatalf("ReadRecentEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].EventType != "turn.cancelled" {
		t.Fatalf("events = %+v, want only the warning", events)
	}
}

func TestSessionFileNameIsSanitized(t *testing.T) {
	tests := map[string]string{
		"":               "server",
		"01HXYZ":         "01HXYZ",
		"../../etc/pass": "______etc_pass",
		"quick-u1":       "quick-u1",
	}
	for in, want := range tests {
		if got := sessionFileName(in); got != want {
			t.Errorf("sessionFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadRecentEventsLimit(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	for i := 0; i < 5; i++ {
		_ = logger.Info("s1", CategoryTurn, "turn.completed", "", map[string]any{"n": i})
	}
	events, err := ReadRecentEvents(logger.SessionPath("s1"), 2)
	if err != nil {
		t.Fatalf("ReadRecentEvents() error = %v", err)
	}
	if len(events) != 2 || events[1].Details["n"] != float64(4) {
		t.Fatalf("events = %+v, want the last two", events)
	}

	if _, err := ReadRecentEvents(filepath.Join(t.TempDir(), "missing.jsonl"), 1); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuditCopiesHubEvents(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	hub := telemetry.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Audit(ctx, hub, logger, nil) }()

	// Publish until the subscriber is attached; the hub drops events with
	// no subscribers.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.Publish(telemetry.Event{Type: telemetry.EventToolFailed, SessionID: "s1", Data: map[string]any{"tool": "modify_workout"}})
		time.Sleep(10 * time.Millisecond)
		events, _ := ReadRecentEvents(logger.SessionPath("s1"), 1)
		if len(events) == 1 {
			if events[0].Category != CategoryTool || events[0].Level != LevelError {
				t.Fatalf("unexpected audit event: %+v", events[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("audit never wrote the event")
		}
	}

	hub.Publish(telemetry.Event{Type: telemetry.EventSessionEnded, SessionID: "s1"})
	deadline = time.Now().Add(2 * time.Second)
	for openSessionFiles(logger) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("session file still open after session.ended")
		}
		time.Sleep(10 * time.Millisecond)
	}
	events, err := ReadRecentEvents(logger.SessionPath("s1"), 1)
	if err != nil || len(events) != 1 || events[0].EventType != string(telemetry.EventSessionEnded) {
		t.Fatalf("last event = %+v, err = %v", events, err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	hub.Close()
}

func openSessionFiles(l *Logger) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.files)
}

func TestFromTelemetryCategories(t *testing.T) {
	tests := []struct {
		typ      telemetry.EventType
		category Category
		level    Level
	}{
		{telemetry.EventTurnCompleted, CategoryTurn, LevelInfo},
		{telemetry.EventTurnCancelled, CategoryTurn, LevelWarn},
		{telemetry.EventIntentDetected, CategoryIntent, LevelInfo},
		{telemetry.EventClarificationAbandoned, CategoryClarification, LevelWarn},
		{telemetry.EventPipelineDegraded, CategoryPipeline, LevelError},
		{telemetry.EventCircuitStateChange, CategoryModel, LevelWarn},
		{telemetry.EventModelStreamStarted, CategoryModel, LevelDebug},
	}
	for _, tt := range tests {
		ev := FromTelemetry(telemetry.Event{Type: tt.typ})
		if ev.Category != tt.category || ev.Level != tt.level {
			t.Errorf("%s => %s/%s, want %s/%s", tt.typ, ev.Category, ev.Level, tt.category, tt.level)
		}
	}
}

func TestTranscriptLogger(t *testing.T) {
	dir := t.TempDir()
	l, err := NewTranscriptLogger(dir)
	if err != nil {
		t.Fatalf("NewTranscriptLogger() error = %v", err)
	}
	l.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }

	if err := l.WriteTurn("s1", "double it", "Which part?", false); err != nil {
		t.Fatalf("WriteTurn() error = %v", err)
	}
	if err := l.WriteTurn("s1", "create a workout", "Here's your", true); err != nil {
		t.Fatalf("WriteTurn() error = %v", err)
	}
	path := l.Path()
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if filepath.Base(path) != "transcript-2026-03-04.log" {
		t.Fatalf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	text := string(data)
	for _, want := range []string{"you: double it", "coach: Which part?", "coach [interrupted]: Here's your"} {
		if !strings.Contains(text, want) {
			t.Errorf("transcript missing %q:\n%s", want, text)
		}
	}
}

func TestNewZapLogger(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "debug", Development: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("debug level should be enabled")
	}

	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
