package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	return rec
}

func TestZerologAdapter_Fields(t *testing.T) {
	tests := []struct {
		name  string
		log   func(a *zerologAdapter)
		level string
		want  map[string]any
	}{
		{
			name:  "string and int values",
			log:   func(a *zerologAdapter) { a.Info("upload recorded", "node_id", "n-1", "version", 2) },
			level: "info",
			want:  map[string]any{"message": "upload recorded", "node_id": "n-1", "version": float64(2)},
		},
		{
			name:  "error value",
			log:   func(a *zerologAdapter) { a.Warn("gateway call failed", "error", errors.New("timeout")) },
			level: "warn",
			want:  map[string]any{"error": "timeout"},
		},
		{
			name:  "stringer value",
			log:   func(a *zerologAdapter) { a.Error("slow", "elapsed", 1500*time.Millisecond) },
			level: "error",
			want:  map[string]any{"elapsed": "1.5s"},
		},
		{
			name:  "dangling value",
			log:   func(a *zerologAdapter) { a.Info("odd", "key", "value", "orphan") },
			level: "info",
			want:  map[string]any{"key": "value", "!BADKEY": "orphan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			a := &zerologAdapter{l: zerolog.New(&buf)}
			tt.log(a)

			rec := decodeLine(t, &buf)
			if rec["level"] != tt.level {
				t.Errorf("level = %v, want %q", rec["level"], tt.level)
			}
			for k, want := range tt.want {
				if rec[k] != want {
					t.Errorf("%s = %v (%T), want %v", k, rec[k], rec[k], want)
				}
			}
		})
	}
}

func TestZerologAdapter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	a := &zerologAdapter{l: zerolog.New(&buf).Level(parseLevel("warn"))}

	a.Debug("hidden")
	a.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}
	a.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn record, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	var console bytes.Buffer
	logger, f, err := newLogger(dir, "run-1", "info", &console)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	(&zerologAdapter{l: logger}).Info("started", "actor", "alice")

	data, err := os.ReadFile(filepath.Join(dir, "dms.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	rec := decodeLine(t, bytes.NewBuffer(data))
	if rec["run"] != "run-1" {
		t.Errorf("run = %v, want %q", rec["run"], "run-1")
	}
	if rec["actor"] != "alice" {
		t.Errorf("actor = %v, want %q", rec["actor"], "alice")
	}
	if _, ok := rec["time"]; !ok {
		t.Error("log record has no timestamp")
	}
	if !strings.Contains(console.String(), "started") {
		t.Errorf("console output = %q, want it to contain the message", console.String())
	}
}
