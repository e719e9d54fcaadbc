package captool

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Tap appends every frame it sees to a newline-delimited JSON file, for
// later replay through Replayer. Unlike Recorder/Session, a Tap has no
// start/stop boundary: it stays open for the life of the CAN reader and
// is safe to write to from a single goroutine (the reader's own).
type Tap struct {
	file   *os.File
	writer *bufio.Writer
}

// OpenTap opens (creating if necessary, appending if it exists) the
// capture file at path.
func OpenTap(path string) (*Tap, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("captool: opening capture file %s: %w", path, err)
	}
	return &Tap{file: f, writer: bufio.NewWriter(f)}, nil
}

// Write appends one frame as a JSON line.
func (t *Tap) Write(canID uint32, data []byte) error {
	line, err := json.Marshal(Frame{Timestamp: time.Now(), CANID: canID, Data: data})
	if err != nil {
		return fmt.Errorf("captool: marshaling tapped frame: %w", err)
	}
	if _, err := t.writer.Write(line); err != nil {
		return fmt.Errorf("captool: writing tapped frame: %w", err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("captool: writing tapped frame: %w", err)
	}
	return nil
}

// Flush pushes buffered writes to disk; call periodically or on
// shutdown so a crash loses at most the unflushed tail.
func (t *Tap) Flush() error {
	return t.writer.Flush()
}

// Close flushes and closes the underlying file.
func (t *Tap) Close() error {
	if err := t.writer.Flush(); err != nil {
		t.file.Close()
		return fmt.Errorf("captool: flushing capture file: %w", err)
	}
	return t.file.Close()
}

// LoadTap reads a newline-delimited capture file written by Tap into a
// Session suitable for Replayer.
func LoadTap(path string, vin, gatewayID string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("captool: opening capture file %s: %w", path, err)
	}
	defer f.Close()

	session := NewSession(vin, gatewayID)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var frame Frame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			return nil, fmt.Errorf("captool: parsing capture line: %w", err)
		}
		session.AddFrame(frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("captool: reading capture file: %w", err)
	}
	return session, nil
}
