package publish

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/anodyne74/canedge/internal/spool"
)

// fakeTransport is an in-memory Transport for exercising Publisher
// without a live broker.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	published []fakePublish
	failTopic string
	failCount int
}

type fakePublish struct {
	topic   string
	qos     byte
	payload []byte
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Publish(topic string, qos byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTopic == topic && f.failCount > 0 {
		f.failCount--
		return errFakePublish
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.published = append(f.published, fakePublish{topic, qos, cp})
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) snapshot() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakePublish, len(f.published))
	copy(out, f.published)
	return out
}

type fakePublishError struct{}

func (fakePublishError) Error() string { return "fake publish failure" }

var errFakePublish = fakePublishError{}

func openTestSpool(t *testing.T) *spool.Store {
	t.Helper()
	s, err := spool.Open(t.TempDir()+"/spool.db", nil)
	if err != nil {
		t.Fatalf("spool.Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPublisherMarksBatchSentOnFullSuccess(t *testing.T) {
	store := openTestSpool(t)
	for i := 0; i < 3; i++ {
		msg := spool.Message{
			MessageID:     "m" + string(rune('0'+i)),
			VIN:           "1HGBH41JXMN109186",
			Timestamp:     time.Now(),
			GatewayID:     "gw-1",
			TelemetryType: "obd2",
			Data:          map[string]any{"n": i},
		}
		if err := store.Enqueue(msg); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	transport := &fakeTransport{connected: true}
	topics := Topics{Telemetry: "vehicle/{vin}/telemetry", Status: "vehicle/{vin}/status"}
	pub := NewPublisher(store, transport, topics, "1HGBH41JXMN109186", "gw-1", nil)

	pub.drainOnce()

	published := transport.snapshot()
	if len(published) != 3 {
		t.Fatalf("expected 3 messages published, got %d", len(published))
	}
	for _, p := range published {
		if p.topic != "vehicle/1HGBH41JXMN109186/telemetry" {
			t.Errorf("expected rendered telemetry topic, got %s", p.topic)
		}
	}

	pending, err := store.Pending(10)
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected batch marked sent and no longer pending, got %d pending", len(pending))
	}
}

func TestPublisherAbortsBatchOnMidBatchFailure(t *testing.T) {
	store := openTestSpool(t)
	for i := 0; i < 2; i++ {
		msg := spool.Message{
			MessageID:     "m" + string(rune('0'+i)),
			VIN:           "1HGBH41JXMN109186",
			Timestamp:     time.Now(),
			GatewayID:     "gw-1",
			TelemetryType: "obd2",
			Data:          map[string]any{"n": i},
		}
		if err := store.Enqueue(msg); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	transport := &fakeTransport{connected: true, failTopic: "vehicle/1HGBH41JXMN109186/telemetry", failCount: 10}
	topics := Topics{Telemetry: "vehicle/{vin}/telemetry", Status: "vehicle/{vin}/status"}
	pub := NewPublisher(store, transport, topics, "1HGBH41JXMN109186", "gw-1", nil)

	retryBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	pub.drainOnce()

	pending, err := store.Pending(10)
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected the failed batch to remain pending, got %d", len(pending))
	}
}

func TestPublisherHeartbeatPublishesStatus(t *testing.T) {
	store := openTestSpool(t)
	transport := &fakeTransport{connected: true}
	topics := Topics{Telemetry: "vehicle/{vin}/telemetry", Status: "vehicle/{vin}/status"}
	pub := NewPublisher(store, transport, topics, "1HGBH41JXMN109186", "gw-1", nil)

	pub.publishHeartbeat()

	published := transport.snapshot()
	if len(published) != 1 {
		t.Fatalf("expected 1 heartbeat published, got %d", len(published))
	}
	if published[0].topic != "vehicle/1HGBH41JXMN109186/status" {
		t.Errorf("expected rendered status topic, got %s", published[0].topic)
	}

	var status map[string]any
	if err := json.Unmarshal(published[0].payload, &status); err != nil {
		t.Fatalf("heartbeat payload did not parse as JSON: %v", err)
	}
	if status["status"] != "online" {
		t.Errorf("expected status online, got %v", status["status"])
	}
}

func TestPublisherRunStopsOnCancellation(t *testing.T) {
	store := openTestSpool(t)
	transport := &fakeTransport{}

	topics := Topics{Telemetry: "vehicle/{vin}/telemetry", Status: "vehicle/{vin}/status"}
	pub := NewPublisher(store, transport, topics, "1HGBH41JXMN109186", "gw-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
