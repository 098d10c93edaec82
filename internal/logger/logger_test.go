package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		output      string
		shouldError bool
	}{
		{"debug text stderr", "debug", "text", "stderr", false},
		{"info json stdout", "info", "json", "stdout", false},
		{"warning text stderr", "warning", "text", "stderr", false},
		{"invalid level", "loud", "text", "stderr", true},
		{"bad file", "info", "text", filepath.Join(t.TempDir(), "missing", "x.log"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.level, tt.format, tt.output)
			if tt.shouldError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			log.Sync()
		})
	}
}

func TestLoggerToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	log, err := New("info", "json", logFile)
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	log.Info("cursor opened", "cursor", 3)
	log.Debug("hidden")
	log.Sync()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"cursor":3`) {
		t.Fatalf("log file lacks field: %s", content)
	}
	if strings.Contains(string(content), "hidden") {
		t.Fatal("debug entry written at info level")
	}
}

func TestFromCoreObserves(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := FromCore(core).Named("cursor").With("session", "s1")
	log.Info("ignored")
	log.Warn("column redefined", "position", 2)
	if logs.Len() != 1 {
		t.Fatalf("got %d entries", logs.Len())
	}
	e := logs.All()[0]
	if e.LoggerName != "cursor" || e.ContextMap()["position"] != int64(2) || e.ContextMap()["session"] != "s1" {
		t.Fatalf("unexpected entry %+v", e)
	}
}
