package spool

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spool.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMessage(n int) Message {
	return Message{
		MessageID:     fmt.Sprintf("msg-%d", n),
		VIN:           "1HGBH41JXMN109186",
		Timestamp:     time.Now(),
		GatewayID:     "gw-001",
		TelemetryType: "obd2",
		Data:          map[string]any{"n": n},
	}
}

func TestSpoolRoundTrip(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		if err := s.Enqueue(testMessage(i)); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	batches, err := s.Pending(10)
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}

	messages, err := Decompress(batches[0])
	if err != nil {
		t.Fatalf("Decompress returned error: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	for i, m := range messages {
		if m.MessageID != fmt.Sprintf("msg-%d", i) {
			t.Errorf("expected messages in arrival order, index %d has id %s", i, m.MessageID)
		}
	}

	if err := s.MarkSent(batches[0].ID); err != nil {
		t.Fatalf("MarkSent returned error: %v", err)
	}

	batches, err = s.Pending(10)
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("expected no pending batches after MarkSent, got %d", len(batches))
	}
}

func TestSpoolFlushesOnSizeThreshold(t *testing.T) {
	s := openTestStore(t)

	big := make([]byte, maxBatchBytes)
	msg := testMessage(0)
	msg.Data["padding"] = string(big)

	if err := s.Enqueue(msg); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	batches, err := s.Pending(10)
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected size threshold to force an immediate flush, got %d pending batches", len(batches))
	}
}

func TestSpoolEmptyFlushIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush on empty batch returned error: %v", err)
	}
	batches, err := s.Pending(10)
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("expected no batches from an empty flush, got %d", len(batches))
	}
}
