package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "wallet_id", "w-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "shown" || entry["wallet_id"] != "w-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewWithWriter_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "loud").Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info, got %q", buf.String())
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" {
		t.Fatalf("expected empty request id")
	}
	if got := RequestID(WithRequestID(ctx, "abc")); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}
