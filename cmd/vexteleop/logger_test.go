package main

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, LogLevelWarn, LogFormatJSON)

	logger.Info("hidden")
	logger.Warn("motor bus close failed", "error", "eof")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "motor bus close failed" || rec["component"] != "vexteleop" || rec["level"] != "WARN" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"ERROR": LogLevelError, "warning": LogLevelWarn, "info": LogLevelInfo, "debug": LogLevelDebug} {
		got, err := parseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("parseLogLevel(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := parseLogLevel("trace"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
