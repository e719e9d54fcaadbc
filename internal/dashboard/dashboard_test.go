package dashboard

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// newTestServer builds a Server wired to an httptest.Server instead of
// a real listener, so the test doesn't bind a port.
func newTestServer(t *testing.T, snapshot SnapshotFunc) (*Server, *httptest.Server) {
	t.Helper()
	s := &Server{
		snapshot: snapshot,
		logger:   log.New(io.Discard, "", 0),
		clients:  make(map[*websocket.Conn]bool),
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.wsHandler)
	router.HandleFunc("/healthz", s.healthzHandler)
	ts := httptest.NewServer(router)
	return s, ts
}

func TestDashboardBroadcastsSnapshotToConnectedClients(t *testing.T) {
	calls := make(chan struct{}, 1)
	s, ts := newTestServer(t, func() Snapshot {
		select {
		case calls <- struct{}{}:
		default:
		}
		return Snapshot{GatewayID: "gw-1", Buffer: map[string]interface{}{"size": 2}}
	})
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// give the handler a moment to register the client before
	// broadcasting manually (Run's ticker isn't active in this test).
	time.Sleep(20 * time.Millisecond)
	s.broadcast()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading broadcast message: %v", err)
	}
	if !strings.Contains(string(payload), "gw-1") {
		t.Errorf("expected snapshot payload to contain gateway id, got %s", payload)
	}
}

func TestDashboardRunStopsOnCancellation(t *testing.T) {
	s := New("127.0.0.1:0", func() Snapshot { return Snapshot{} }, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
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
