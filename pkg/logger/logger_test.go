package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNew_ConsoleLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", FileConfig{}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Info("hidden message")
	log.Warn("visible message", zap.Int("rays", 3))
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("info line must be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "WARN") {
		t.Errorf("expected warn line, got %q", out)
	}
	if !strings.Contains(out, `"rays": 3`) {
		t.Errorf("expected structured field, got %q", out)
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "raycast.log")
	log, err := New("debug", DefaultFileConfig(path), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Debug("scene committed", zap.Int("geometries", 2))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"scene committed"`) {
		t.Errorf("expected JSON log line, got %q", data)
	}
	if !strings.Contains(string(data), `"geometries":2`) {
		t.Errorf("expected structured field, got %q", data)
	}
}

func TestNew_NoSinks(t *testing.T) {
	log, err := New("info", FileConfig{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Must be safe to use
	log.Info("discarded")
}
