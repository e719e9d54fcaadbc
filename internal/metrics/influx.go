// Package metrics periodically writes gateway health counters to an
// optional InfluxDB instance. It is disabled unless metrics.enabled is
// set; the gateway runs unaffected without it.
package metrics

import (
	"context"
	"fmt"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const writeInterval = 10 * time.Second

// Source reports the gateway's current health counters. Each component
// (ingest buffer, decoded queue, spool, publisher) implements this.
type Source interface {
	Name() string
	Fields() map[string]interface{}
}

// pointWriter is the subset of api.WriteAPIBlocking the Sink uses, so
// tests can substitute a fake without a live InfluxDB instance.
type pointWriter interface {
	WritePoint(ctx context.Context, point *write.Point) error
}

// Sink writes periodic health snapshots from a set of Sources to
// InfluxDB.
type Sink struct {
	client    influxdb2.Client
	writeAPI  pointWriter
	gatewayID string
	sources   []Source
	logger    *log.Logger
}

// NewSink connects to an InfluxDB instance at url using token, org and
// bucket. Returns an error if the instance is unreachable; callers
// should treat that as non-fatal and run without metrics.
func NewSink(url, token, org, bucket, gatewayID string, logger *log.Logger) (*Sink, error) {
	if logger == nil {
		logger = log.Default()
	}
	client := influxdb2.NewClient(url, token)

	if _, err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("metrics: connecting to influxdb: %w", err)
	}

	return &Sink{
		client:    client,
		writeAPI:  client.WriteAPIBlocking(org, bucket),
		gatewayID: gatewayID,
		logger:    logger,
	}, nil
}

// Register adds a health source to be sampled on every write tick.
func (s *Sink) Register(src Source) {
	s.sources = append(s.sources, src)
}

// Run samples every registered Source every 10s and writes a point per
// source, until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(writeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.client.Close()
			return
		case <-ticker.C:
			s.writeOnce()
		}
	}
}

func (s *Sink) writeOnce() {
	now := time.Now()
	for _, src := range s.sources {
		point := influxdb2.NewPoint(
			"gateway_health",
			map[string]string{
				"gateway_id": s.gatewayID,
				"component":  src.Name(),
			},
			src.Fields(),
			now,
		)
		if err := s.writeAPI.WritePoint(context.Background(), point); err != nil {
			s.logger.Printf("metrics: writing %s point: %v", src.Name(), err)
		}
	}
}
