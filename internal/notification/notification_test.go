package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestLoggerNotifier_WritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Send(context.Background(), Message{
		Kind:        KindTopUpCompleted,
		Destination: "user-1",
		Body:        "credited",
		Attributes:  map[string]string{"wallet_id": "w-1"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["kind"] != KindTopUpCompleted || entry["destination"] != "user-1" || entry["wallet_id"] != "w-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestLoggerNotifier_NilSafe(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{Kind: KindReconciliationRequired}); err != nil {
		t.Fatalf("nil notifier should be a no-op, got %v", err)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{Err: errors.New("offline")}
	if err := r.Send(context.Background(), Message{Kind: KindTopUpCompleted}); err == nil {
		t.Fatalf("expected configured error")
	}
	if got := r.Messages(); len(got) != 1 || got[0].Kind != KindTopUpCompleted {
		t.Fatalf("unexpected messages %v", got)
	}
}
