// Package spool durably batches decoded telemetry to a local SQLite
// file, surviving network outages and process restarts without losing
// unsent data.
package spool

import "time"

// schemaVersion is recorded in spool_metadata so a future release can
// detect and migrate an older on-disk layout.
const schemaVersion = 1

const (
	// maxBatchBytes is the uncompressed-size threshold that forces a
	// flush of the in-memory batch.
	maxBatchBytes = 256 * 1024
	// maxBatchAge is the wall-clock age threshold that forces a flush
	// even if maxBatchBytes hasn't been reached.
	maxBatchAge = 5 * time.Second
	// maxDiskBytes is the total on-disk footprint cap across all rows
	// (by uncompressed_size), enforced after every insert.
	maxDiskBytes = 1024 * 1024 * 1024
	// evictBatchCount is how many oldest unsent rows are sacrificed in
	// one eviction pass once no sent rows remain to reclaim.
	evictBatchCount = 10
)

// Message is the JSON-serializable telemetry record the spool stores,
// matching the wire payload the publisher sends on.
type Message struct {
	MessageID     string          `json:"messageId"`
	VIN           string          `json:"vin"`
	Timestamp     time.Time       `json:"timestamp"`
	GatewayID     string          `json:"gatewayId"`
	TelemetryType string          `json:"telemetryType"`
	Data          map[string]any  `json:"data"`
}

// BatchView is a read-only view of one spooled batch, as returned by
// Pending. Payload is the gzip-compressed JSON array; Decompress inflates
// and parses it.
type BatchView struct {
	ID               int64
	Timestamp        time.Time
	Payload          []byte
	UncompressedSize int
	Sent             bool
}
