// Command gateway runs the CAN-bus edge gateway: it ingests frames off
// a vehicle's CAN bus, decodes OBD-II and UDS diagnostic responses,
// spools them durably to disk, and publishes them to a remote broker.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/anodyne74/canedge/internal/canbus"
	"github.com/anodyne74/canedge/internal/captool"
	"github.com/anodyne74/canedge/internal/config"
	"github.com/anodyne74/canedge/internal/dashboard"
	"github.com/anodyne74/canedge/internal/metrics"
	"github.com/anodyne74/canedge/internal/pipeline"
	"github.com/anodyne74/canedge/internal/poller"
	"github.com/anodyne74/canedge/internal/publish"
	"github.com/anodyne74/canedge/internal/spool"
)

// functionalRequestID is the SAE J1979 functional addressing ID every
// OBD-II scan tool broadcasts requests on.
const functionalRequestID = 0x7DF

// shutdownGrace bounds how long Run loops are given to drain and exit
// once shutdown begins.
const shutdownGrace = 5 * time.Second

func main() {
	configPath := flag.String("config", "gateway.yaml", "path to the gateway's YAML configuration")
	flag.Parse()

	logger := log.New(os.Stderr, "gateway: ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("gateway: loading config: %v", err)
	}

	buffer := canbus.NewBuffer(cfg.CAN.BufferSize, cfg.CAN.BufferWarningThreshold, logger)

	reader, err := canbus.NewReader(cfg.CAN.Interface, buffer, logger)
	if err != nil {
		log.Fatalf("gateway: opening CAN interface: %v", err)
	}

	if cfg.CAN.CapturePath != "" {
		tap, err := captool.OpenTap(cfg.CAN.CapturePath)
		if err != nil {
			log.Fatalf("gateway: opening capture tap: %v", err)
		}
		defer tap.Close()
		reader.SetTap(tap)
	}

	decodedQueue := pipeline.NewQueue(256)
	decoder := pipeline.NewDecoder(buffer, decodedQueue, logger)

	store, err := spool.Open(cfg.Buffer.DBPath, logger)
	if err != nil {
		log.Fatalf("gateway: opening local spool: %v", err)
	}
	defer store.Close()

	spooler := pipeline.NewSpooler(decodedQueue, store, cfg.Vehicle.VIN, cfg.Vehicle.GatewayID, logger)

	transport, err := publish.NewMQTTTransport(
		cfg.MQTT.Endpoint, cfg.MQTT.Port, cfg.Vehicle.GatewayID,
		time.Duration(cfg.MQTT.KeepAlive)*time.Second,
		publish.Certificates{CA: cfg.MQTT.Certificates.CA, Client: cfg.MQTT.Certificates.Client, Key: cfg.MQTT.Certificates.Key},
	)
	if err != nil {
		log.Fatalf("gateway: building MQTT transport: %v", err)
	}
	publisher := publish.NewPublisher(store, transport,
		publish.Topics{Telemetry: cfg.MQTT.Topics.Telemetry, Status: cfg.MQTT.Topics.Status},
		cfg.Vehicle.VIN, cfg.Vehicle.GatewayID, logger)

	sched := poller.NewScheduler(makeRequestSink(reader, logger), logger)
	if cfg.OBD2.Enabled {
		for _, pid := range cfg.OBD2.PIDs {
			id, err := parsePID(pid.PID)
			if err != nil {
				log.Fatalf("gateway: configured PID %q: %v", pid.PID, err)
			}
			if err := sched.Add(id, pid.Name, pid.IntervalMS, pid.Enabled); err != nil {
				log.Fatalf("gateway: scheduling PID %s: %v", pid.Name, err)
			}
		}
	}

	var dashboardServer *dashboard.Server
	if cfg.Dashboard.ListenAddr != "" {
		dashboardServer = dashboard.New(cfg.Dashboard.ListenAddr, func() dashboard.Snapshot {
			return dashboard.Snapshot{
				Timestamp: time.Now(),
				GatewayID: cfg.Vehicle.GatewayID,
				Buffer:    bufferFields(buffer),
				Queue:     queueFields(decodedQueue),
				Spool:     spoolFields(store, logger),
				Publisher: publisherFields(publisher),
			}
		}, logger)
	}

	var metricsSink *metrics.Sink
	if cfg.Metrics.Enabled {
		metricsSink, err = metrics.NewSink(cfg.Metrics.URL, cfg.Metrics.Token, cfg.Metrics.Org, cfg.Metrics.Bucket, cfg.Vehicle.GatewayID, logger)
		if err != nil {
			logger.Printf("metrics disabled: %v", err)
			metricsSink = nil
		} else {
			metricsSink.Register(metrics.BufferSource{Buffer: buffer})
			metricsSink.Register(metrics.QueueSource{Queue: decodedQueue})
			metricsSink.Register(metrics.SpoolSource{Store: store})
			metricsSink.Register(metrics.PublisherSource{Publisher: publisher})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	runStage := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
		_ = name
	}

	runStage("can_reader", func(ctx context.Context) { _ = reader.Run(ctx) })
	runStage("decoder", decoder.Run)
	runStage("spooler", spooler.Run)
	runStage("poller", sched.Run)
	runStage("publisher", func(ctx context.Context) {
		if err := publisher.Run(ctx); err != nil {
			logger.Printf("publisher stopped: %v", err)
		}
	})
	if dashboardServer != nil {
		runStage("dashboard", func(ctx context.Context) {
			if err := dashboardServer.Run(ctx); err != nil {
				logger.Printf("dashboard stopped: %v", err)
			}
		})
	}
	if metricsSink != nil {
		runStage("metrics", metricsSink.Run)
	}

	<-ctx.Done()
	logger.Printf("shutdown signal received, draining (up to %s)", shutdownGrace)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Printf("all stages stopped cleanly")
	case <-time.After(shutdownGrace):
		logger.Printf("shutdown grace period elapsed, exiting")
	}
}

func makeRequestSink(reader *canbus.Reader, logger *log.Logger) poller.RequestSink {
	return func(pid byte, name string) {
		request := []byte{0x02, 0x01, pid}
		if err := reader.Publish(functionalRequestID, request); err != nil {
			logger.Printf("poller: requesting %s (PID 0x%02X): %v", name, pid, err)
		}
	}
}

func parsePID(hexStr string) (byte, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID hex string %q: %w", hexStr, err)
	}
	if len(raw) != 1 {
		return 0, fmt.Errorf("PID %q must decode to exactly one byte, got %d", hexStr, len(raw))
	}
	return raw[0], nil
}

func bufferFields(b *canbus.Buffer) map[string]interface{} {
	st := b.Stats()
	return map[string]interface{}{
		"size": st.Size, "capacity": st.Capacity,
		"enqueued": st.Enqueued, "dropped": st.Dropped, "utilization": st.Utilization,
	}
}

func queueFields(q *pipeline.Queue) map[string]interface{} {
	st := q.Stats()
	return map[string]interface{}{
		"enqueued": st.Enqueued, "dequeued": st.Dequeued, "dropped": st.Dropped, "depth": st.Depth,
	}
}

func spoolFields(store *spool.Store, logger *log.Logger) map[string]interface{} {
	st, err := store.Stats()
	if err != nil {
		logger.Printf("dashboard: reading spool stats: %v", err)
		return map[string]interface{}{"error": err.Error()}
	}
	return map[string]interface{}{
		"pendingBatches": st.PendingBatches, "sentBatches": st.SentBatches, "diskBytes": st.DiskBytes,
	}
}

func publisherFields(p *publish.Publisher) map[string]interface{} {
	st := p.Stats()
	return map[string]interface{}{
		"batchesPublished": st.BatchesPublished, "messagesPublished": st.MessagesPublished, "publishFailures": st.PublishFailures,
	}
}
