package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"miniagents/internal/config"
)

func testLoggingConfig(t *testing.T) config.LoggingConfig {
	t.Helper()
	return config.LoggingConfig{
		Level:      "debug",
		Path:       filepath.Join(t.TempDir(), "test.log"),
		MaxSizeMB:  1,
		MaxBackups: 2,
		MaxAgeDays: 1,
		Compress:   true,
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	cfg := testLoggingConfig(t)
	cfg.Path = ""
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an empty log path")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	cfg := testLoggingConfig(t)
	cfg.Level = "loud"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	cfg := testLoggingConfig(t)
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello from a test", String("key", "value"))
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from a test") {
		t.Fatalf("expected log file to contain the message, got %q", data)
	}
}

func TestWithAddsFields(t *testing.T) {
	cfg := testLoggingConfig(t)
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	derived := logger.With(String("component", "test"))
	derived.Info("scoped message")
	if err := derived.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"component":"test"`) {
		t.Fatalf("expected structured field in log file, got %q", data)
	}
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	cfg := testLoggingConfig(t)
	cfg.Level = "warn"
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("should not appear")
	logger.Warn("should appear")
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "should not appear") {
		t.Fatalf("expected info message to be filtered out, got %q", data)
	}
	if !strings.Contains(string(data), "should appear") {
		t.Fatalf("expected warn message to be present, got %q", data)
	}
}

func TestTraceIDRoundTripsThroughContext(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc-123")
	if got := TraceIDFromContext(ctx); got != "abc-123" {
		t.Fatalf("expected trace id abc-123, got %q", got)
	}
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty trace id for a bare context, got %q", got)
	}
}

func TestWithTraceGeneratesIDWhenAbsent(t *testing.T) {
	ctx, logger, traceID := WithTrace(context.Background(), NewTestLogger(), "")
	if traceID == "" {
		t.Fatal("expected a generated trace id")
	}
	if TraceIDFromContext(ctx) != traceID {
		t.Fatalf("expected context to carry the same trace id")
	}
	if logger == nil {
		t.Fatal("expected a derived logger")
	}
}

func TestGenerateTraceIDIsUnique(t *testing.T) {
	a := GenerateTraceID()
	b := GenerateTraceID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty trace ids")
	}
	if a == b {
		t.Fatal("expected two distinct trace ids")
	}
}

func TestLoggerRotatesWhenSizeExceeded(t *testing.T) {
	cfg := testLoggingConfig(t)
	cfg.MaxSizeMB = 1 // smallest allowed unit
	writer, err := newRotatingWriter(cfg)
	if err != nil {
		t.Fatalf("newRotatingWriter: %v", err)
	}
	// Two 600 KiB writes exceed the 1 MiB limit, so the second one moves the
	// first out to a timestamped (and, with Compress set, gzipped) file.
	chunk := make([]byte, 600*1024)
	for i := 0; i < 2; i++ {
		if _, err := writer.Write(chunk); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if err := writer.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	rotated, err := filepath.Glob(cfg.Path + ".*")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(rotated) == 0 {
		t.Fatal("expected a rotated log file beside the active one")
	}
}

func TestFatalLevelStringing(t *testing.T) {
	if FatalLevel.String() != "fatal" {
		t.Fatalf("expected %q, got %q", "fatal", FatalLevel.String())
	}
	if Level(99).String() != "info" {
		t.Fatalf("expected unknown levels to default to info")
	}
}

func TestNewTestLoggerNeverFails(t *testing.T) {
	logger := NewTestLogger()
	logger.Debug("discarded")
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
