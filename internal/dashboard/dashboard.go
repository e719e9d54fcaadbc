// Package dashboard serves a small HTTP+websocket endpoint broadcasting
// the gateway's health snapshot once per second, for a local operator
// UI or a technician's laptop on the vehicle network.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const broadcastInterval = 1 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Snapshot is the JSON health payload broadcast to every connected
// client.
type Snapshot struct {
	Timestamp time.Time                `json:"timestamp"`
	GatewayID string                   `json:"gatewayId"`
	Buffer    map[string]interface{}   `json:"buffer,omitempty"`
	Queue     map[string]interface{}   `json:"queue,omitempty"`
	Spool     map[string]interface{}   `json:"spool,omitempty"`
	Publisher map[string]interface{}   `json:"publisher,omitempty"`
}

// SnapshotFunc produces the current Snapshot on demand.
type SnapshotFunc func() Snapshot

// Server hosts the /ws health feed and a /healthz liveness probe.
type Server struct {
	addr     string
	snapshot SnapshotFunc
	logger   *log.Logger
	http     *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// New builds a Server listening on addr, broadcasting whatever
// snapshot returns.
func New(addr string, snapshot SnapshotFunc, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		addr:     addr,
		snapshot: snapshot,
		logger:   logger,
		clients:  make(map[*websocket.Conn]bool),
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.wsHandler)
	router.HandleFunc("/healthz", s.healthzHandler)
	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("dashboard: websocket upgrade: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, ws)
		s.mu.Unlock()
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) broadcast() {
	snap := s.snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		s.logger.Printf("dashboard: marshaling snapshot: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.logger.Printf("dashboard: sending to client: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

// Run starts the HTTP server and the broadcast loop, blocking until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.closeClients()
			return s.http.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
}
