package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestComponentAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewWithWriter(&buf, "debug"), "session")
	logger.Debug("checked")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["component"] != "session" {
		t.Fatalf("expected component attribute, got %v", entry)
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "chatty")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %s", buf.String())
	}
	logger.Info("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected info line")
	}
}

func TestComponentNilLogger(t *testing.T) {
	if Component(nil, "x") == nil {
		t.Fatalf("expected discard logger")
	}
}
