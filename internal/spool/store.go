package spool

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable local spool. It accumulates an in-memory batch
// of messages and flushes it, gzip-compressed, to a single SQLite table
// when a size or age threshold is crossed.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	mu          sync.Mutex
	current     []Message
	currentSize int
	batchOpened time.Time
}

// Open opens (creating if necessary) the spool database at dbPath.
func Open(dbPath string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("spool: opening %s: %w", dbPath, err)
	}

	s := &Store{db: db, logger: logger, batchOpened: time.Now()}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS telemetry_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp REAL NOT NULL,
			payload BLOB NOT NULL,
			uncompressed_size INTEGER NOT NULL,
			sent INTEGER NOT NULL DEFAULT 0,
			created_at REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sent_timestamp ON telemetry_batches(sent, timestamp)`,
		`CREATE TABLE IF NOT EXISTS spool_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("spool: creating schema: %w", err)
		}
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO spool_metadata (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", schemaVersion),
	)
	if err != nil {
		return fmt.Errorf("spool: writing schema version: %w", err)
	}
	return nil
}

// Enqueue appends msg to the in-memory batch and flushes if either
// threshold (256KiB uncompressed, 5s age) has been crossed.
func (s *Store) Enqueue(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("spool: marshaling message: %w", err)
	}

	if len(s.current) == 0 {
		s.batchOpened = time.Now()
	}
	s.current = append(s.current, msg)
	s.currentSize += len(raw)

	if s.currentSize >= maxBatchBytes || time.Since(s.batchOpened) >= maxBatchAge {
		return s.flushLocked()
	}
	return nil
}

// FlushIfDue flushes the in-memory batch if the age threshold has
// elapsed, even if it never reached the size threshold. Call this
// periodically (e.g. once per second) from the spooler loop.
func (s *Store) FlushIfDue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.current) == 0 || time.Since(s.batchOpened) < maxBatchAge {
		return nil
	}
	return s.flushLocked()
}

// Flush forces an immediate flush of the in-memory batch, used at
// shutdown so a process kill loses at most the batch accumulated since
// the previous flush.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if len(s.current) == 0 {
		return nil
	}

	payload, err := json.Marshal(s.current)
	if err != nil {
		return fmt.Errorf("spool: marshaling batch: %w", err)
	}
	uncompressedSize := len(payload)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("spool: compressing batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("spool: closing gzip writer: %w", err)
	}

	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO telemetry_batches (timestamp, payload, uncompressed_size, sent, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		float64(now.UnixNano())/1e9, buf.Bytes(), uncompressedSize, float64(now.UnixNano())/1e9,
	)
	if err != nil {
		return fmt.Errorf("spool: inserting batch: %w", err)
	}

	s.current = nil
	s.currentSize = 0
	s.batchOpened = now

	return s.evictIfOverCapLocked()
}

// evictIfOverCapLocked enforces the 1GiB on-disk cap, sacrificing
// already-sent rows oldest-first, evictBatchCount at a time, before
// touching unsent data.
func (s *Store) evictIfOverCapLocked() error {
	for {
		total, err := s.diskUsageLocked()
		if err != nil {
			return err
		}
		if total <= maxDiskBytes {
			return nil
		}

		sentDeleted, err := s.evictOldestLocked(true)
		if err != nil {
			return fmt.Errorf("spool: evicting sent rows: %w", err)
		}
		if sentDeleted > 0 {
			continue
		}

		s.logger.Printf("spool: disk cap exceeded with no sent rows to evict; dropping oldest %d unsent batches", evictBatchCount)
		unsentDeleted, err := s.evictOldestLocked(false)
		if err != nil {
			return fmt.Errorf("spool: evicting unsent rows: %w", err)
		}
		if unsentDeleted == 0 {
			return nil
		}
	}
}

func (s *Store) diskUsageLocked() (int64, error) {
	var total int64
	if err := s.db.QueryRow(`SELECT COALESCE(SUM(uncompressed_size), 0) FROM telemetry_batches`).Scan(&total); err != nil {
		return 0, fmt.Errorf("spool: summing disk usage: %w", err)
	}
	return total, nil
}

// evictOldestLocked deletes up to evictBatchCount of the oldest rows
// matching the given sent flag, returning how many were removed.
func (s *Store) evictOldestLocked(sent bool) (int64, error) {
	sentVal := 0
	if sent {
		sentVal = 1
	}
	res, err := s.db.Exec(`
		DELETE FROM telemetry_batches WHERE id IN (
			SELECT id FROM telemetry_batches WHERE sent = ? ORDER BY timestamp ASC LIMIT ?
		)`, sentVal, evictBatchCount)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats reports a snapshot of spool disk usage and backlog depth, for
// the health metrics sink.
type Stats struct {
	PendingBatches int64
	SentBatches    int64
	DiskBytes      int64
}

// Stats queries current pending/sent counts and total on-disk size.
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	row := s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN sent = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sent = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(uncompressed_size), 0)
		FROM telemetry_batches`)
	if err := row.Scan(&stats.PendingBatches, &stats.SentBatches, &stats.DiskBytes); err != nil {
		return Stats{}, fmt.Errorf("spool: querying stats: %w", err)
	}
	return stats, nil
}

// Pending returns up to limit oldest unsent batches, by timestamp.
func (s *Store) Pending(limit int) ([]BatchView, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, payload, uncompressed_size FROM telemetry_batches
		 WHERE sent = 0 ORDER BY timestamp ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("spool: querying pending batches: %w", err)
	}
	defer rows.Close()

	var batches []BatchView
	for rows.Next() {
		var b BatchView
		var ts float64
		if err := rows.Scan(&b.ID, &ts, &b.Payload, &b.UncompressedSize); err != nil {
			return nil, fmt.Errorf("spool: scanning batch row: %w", err)
		}
		b.Timestamp = time.Unix(0, int64(ts*1e9))
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// MarkSent flips the sent flag for a batch, after every constituent
// message has been published successfully.
func (s *Store) MarkSent(id int64) error {
	_, err := s.db.Exec(`UPDATE telemetry_batches SET sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("spool: marking batch %d sent: %w", id, err)
	}
	return nil
}

// Decompress inflates a batch's gzip payload and parses the JSON array
// of messages it carries.
func Decompress(batch BatchView) ([]Message, error) {
	gz, err := gzip.NewReader(bytes.NewReader(batch.Payload))
	if err != nil {
		return nil, fmt.Errorf("spool: opening gzip reader: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("spool: decompressing batch: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("spool: parsing batch payload: %w", err)
	}
	return messages, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
