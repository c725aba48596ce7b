package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger
	Logger = zap.New(core)
	defer func() { Logger = prev }()

	Info("detector ready", Options{Key: "pid", Data: 42})
	Warning("frame dropped")
	Error("detector crashed", Options{Key: "error", Data: errors.New("boom")})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	want := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Errorf("entry %d level = %v, want %v", i, e.Level, want[i])
		}
	}

	if got := entries[0].ContextMap()["pid"]; got != int64(42) {
		t.Errorf("pid field = %v, want 42", got)
	}
	if got := entries[2].ContextMap()["error"]; got != "boom" {
		t.Errorf("error field = %v, want boom", got)
	}
}

func TestDefaultLoggerIsSilent(t *testing.T) {
	// Must not panic before Init.
	Info("nothing configured")
	Sync()
}
