// Package publish delivers spooled telemetry batches to the remote
// broker with at-least-once semantics, and emits a periodic liveness
// heartbeat.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/anodyne74/canedge/internal/spool"
)

// retryBackoff is the exponential retry schedule for a single publish
// attempt: 1s, 2s, 4s.
var retryBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

const heartbeatInterval = 30 * time.Second

// pendingBatchLimit bounds how many batches the publisher fetches per
// loop iteration.
const pendingBatchLimit = 10

// Topics names the publish destinations, both supporting a {vin}
// template token.
type Topics struct {
	Telemetry string
	Status    string
}

// Stats counts publisher activity for the local dashboard/metrics sink.
type Stats struct {
	BatchesPublished uint64
	MessagesPublished uint64
	PublishFailures  uint64
}

// Publisher drains the local spool's pending batches to the broker.
type Publisher struct {
	store     *spool.Store
	transport Transport
	topics    Topics
	vin       string
	gatewayID string
	logger    *log.Logger

	stats Stats
}

// NewPublisher builds a Publisher over store, sending through transport.
func NewPublisher(store *spool.Store, transport Transport, topics Topics, vin, gatewayID string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{
		store:     store,
		transport: transport,
		topics:    topics,
		vin:       vin,
		gatewayID: gatewayID,
		logger:    logger,
	}
}

// Run connects to the broker and loops, draining pending batches and
// emitting a heartbeat, until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.transport.Connect(); err != nil {
		return fmt.Errorf("publish: initial connect: %w", err)
	}
	defer p.transport.Disconnect()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	drainTick := time.NewTicker(500 * time.Millisecond)
	defer drainTick.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drainOnce() // best-effort final send on shutdown
			return nil
		case <-heartbeat.C:
			p.publishHeartbeat()
		case <-drainTick.C:
			p.drainOnce()
		}
	}
}

// drainOnce fetches up to pendingBatchLimit of the oldest pending
// batches and publishes them while the transport is connected.
func (p *Publisher) drainOnce() {
	if !p.transport.Connected() {
		return
	}

	batches, err := p.store.Pending(pendingBatchLimit)
	if err != nil {
		p.logger.Printf("publish: fetching pending batches: %v", err)
		return
	}

	for _, batch := range batches {
		if !p.transport.Connected() {
			return
		}
		p.publishBatch(batch)
	}
}

func (p *Publisher) publishBatch(batch spool.BatchView) {
	messages, err := spool.Decompress(batch)
	if err != nil {
		p.logger.Printf("publish: decompressing batch %d: %v", batch.ID, err)
		return
	}

	for _, msg := range messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			p.logger.Printf("publish: marshaling message %s: %v", msg.MessageID, err)
			return // abort mid-batch: do not mark sent
		}
		topic := renderTopic(p.topics.Telemetry, p.vin)
		if err := p.publishWithRetry(topic, payload); err != nil {
			p.stats.PublishFailures++
			p.logger.Printf("publish: batch %d aborted, message %s failed: %v", batch.ID, msg.MessageID, err)
			return // failure mid-batch aborts without marking sent; retried next iteration
		}
		p.stats.MessagesPublished++
	}

	if err := p.store.MarkSent(batch.ID); err != nil {
		p.logger.Printf("publish: marking batch %d sent: %v", batch.ID, err)
		return
	}
	p.stats.BatchesPublished++
}

// publishWithRetry attempts delivery, retrying at 1s, 2s, 4s on
// failure.
func (p *Publisher) publishWithRetry(topic string, payload []byte) error {
	var lastErr error
	if err := p.transport.Publish(topic, 1, payload); err == nil {
		return nil
	} else {
		lastErr = err
	}

	for _, wait := range retryBackoff {
		time.Sleep(wait)
		if err := p.transport.Publish(topic, 1, payload); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

func (p *Publisher) publishHeartbeat() {
	if !p.transport.Connected() {
		return
	}
	status := map[string]any{
		"vin":       p.vin,
		"gatewayId": p.gatewayID,
		"status":    "online",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(status)
	if err != nil {
		p.logger.Printf("publish: marshaling heartbeat: %v", err)
		return
	}
	topic := renderTopic(p.topics.Status, p.vin)
	if err := p.transport.Publish(topic, 1, payload); err != nil {
		p.logger.Printf("publish: heartbeat failed: %v", err)
	}
}

func renderTopic(template, vin string) string {
	out := make([]byte, 0, len(template))
	for i := 0; i < len(template); i++ {
		if i+5 <= len(template) && template[i:i+5] == "{vin}" {
			out = append(out, vin...)
			i += 4
			continue
		}
		out = append(out, template[i])
	}
	return string(out)
}

// Stats returns a snapshot of publish counters.
func (p *Publisher) Stats() Stats { return p.stats }
