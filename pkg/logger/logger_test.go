package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		level   string
		wantErr bool
	}{
		{name: "defaults", format: "", level: ""},
		{name: "json debug", format: "json", level: "debug"},
		{name: "text warn", format: "TEXT", level: "warning"},
		{name: "bad format", format: "xml", level: "info", wantErr: true},
		{name: "bad level", format: "text", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(&buf, tt.format, tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && l == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "json", "info")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Debug("hidden")
	l.Info("table generated", "cells", 6600)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1 (debug filtered)", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "table generated" || rec["cells"] != float64(6600) {
		t.Errorf("record = %v", rec)
	}
}
