package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/anodyne74/canedge/internal/obd2"
	"github.com/anodyne74/canedge/internal/spool"
)

func openTestStore(t *testing.T) *spool.Store {
	t.Helper()
	s, err := spool.Open(t.TempDir()+"/spool.db", nil)
	if err != nil {
		t.Fatalf("spool.Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSpoolerForwardsDecodedMessages(t *testing.T) {
	store := openTestStore(t)
	queue := NewQueue(4)
	spooler := NewSpooler(queue, store, "1HGBH41JXMN109186", "gw-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		spooler.Run(ctx)
		close(done)
	}()

	queue.Enqueue(NewOBD2Message(&obd2.Message{
		Mode:       0x01,
		Parameters: []obd2.Parameter{{PID: 0x0C, Name: "ENGINE_RPM", Value: 1726.0, Unit: "rpm"}},
	}, 0x7E8, "req-1"))

	time.Sleep(20 * time.Millisecond) // let the spooler goroutine consume the enqueued message
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("spooler did not stop after cancellation")
	}

	if err := store.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	batches, err := store.Pending(10)
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 pending batch, got %d", len(batches))
	}
	messages, err := spool.Decompress(batches[0])
	if err != nil {
		t.Fatalf("Decompress returned error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 spooled message, got %d", len(messages))
	}
	if messages[0].TelemetryType != "obd2" {
		t.Errorf("expected telemetryType obd2, got %s", messages[0].TelemetryType)
	}
}
