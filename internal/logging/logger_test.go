// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q): expected %v got %v", tc.in, tc.want, got)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if logger := NewLogger("dev"); logger == nil {
		t.Fatal("expected dev logger")
	}
	if logger := NewLogger("prod"); logger == nil {
		t.Fatal("expected prod logger")
	}
}

func TestNewLoggerToHonorsEnvAndLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "prod")
	logger.Info("dropped")
	logger.Warn("kept", "execution_id", "e-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at warn level, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected json output in prod: %v", err)
	}
	if rec["msg"] != "kept" || rec["execution_id"] != "e-1" {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["source"]; ok {
		t.Fatal("expected no source in prod")
	}
}
