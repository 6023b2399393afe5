package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// TestParseLevel verifies every level name, case-insensitively
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"TRACE", LevelTrace, false},
		{"debug", LevelDebug, false},
		{"Info", LevelInfo, false},
		{"warn", LevelWarning, false},
		{"WARNING", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestNewJSON verifies the default handler writes JSON filtered by level
func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, shutdown, err := New(context.Background(), Config{Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer shutdown(context.Background())

	log.Info("hidden")
	log.Warn("validation findings", "count", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "validation findings" || rec["count"] != 3.0 || rec["level"] != "WARN" {
		t.Errorf("record = %v", rec)
	}
}

// TestNewText verifies the text format and custom level names
func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(context.Background(), Config{Level: "trace", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	log.Log(context.Background(), LevelTrace, "compiled", "rule", "bonus")

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") || !strings.Contains(out, "rule=bonus") {
		t.Errorf("output = %q", out)
	}
}

// TestNewRejectsBadConfig verifies unknown levels and formats fail
func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"Bad level", Config{Level: "loud"}},
		{"Bad format", Config{Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := New(context.Background(), tt.cfg, &bytes.Buffer{}); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

// TestSamplingHandler verifies sampling only applies to warnings and errors
func TestSamplingHandler(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(context.Background(), Config{Format: "text", SampleRate: 1000000}, &buf)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		log.Info("kept")
	}
	log.With("component", "engine").Info("kept")

	if got := strings.Count(buf.String(), "msg=kept"); got != 11 {
		t.Errorf("info records = %d, want 11", got)
	}
}

// TestLevelHandler verifies level filtering on a wrapped handler
func TestLevelHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &levelHandler{level: LevelError, handler: slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace})}
	log := slog.New(h).WithGroup("g").With("k", "v")

	log.Warn("dropped")
	log.Error("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "g.k=v") {
		t.Errorf("output = %q", buf.String())
	}
}
