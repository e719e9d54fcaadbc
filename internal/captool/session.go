// Package captool records CAN traffic and its decoded output to disk,
// and replays a recording back through the same decode pipeline for
// offline debugging and fixture-driven tests.
package captool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Frame is one captured sample: the raw CAN frame and, if the decode
// pipeline produced one, its decoded form.
type Frame struct {
	Timestamp time.Time   `json:"timestamp"`
	CANID     uint32      `json:"canId"`
	Data      []byte      `json:"data"`
	Decoded   interface{} `json:"decoded,omitempty"`
}

// Session is a sequence of captured frames bracketed by a start and end
// time, tagged with the vehicle and gateway that produced it.
type Session struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime,omitempty"`
	VIN       string    `json:"vin"`
	GatewayID string    `json:"gatewayId"`
	Frames    []Frame   `json:"frames"`
	filePath  string
}

// NewSession starts an empty in-memory session for vin/gatewayID.
func NewSession(vin, gatewayID string) *Session {
	return &Session{
		StartTime: time.Now(),
		VIN:       vin,
		GatewayID: gatewayID,
		Frames:    make([]Frame, 0),
	}
}

// AddFrame appends a captured frame to the session.
func (s *Session) AddFrame(f Frame) {
	s.Frames = append(s.Frames, f)
}

// Save writes the session as indented JSON to path, creating parent
// directories as needed. If path is empty, a timestamped name is
// generated under captures/.
func (s *Session) Save(path string) error {
	if path == "" {
		path = filepath.Join("captures", fmt.Sprintf("session_%s.json", time.Now().Format("20060102_150405")))
	}
	s.filePath = path

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("captool: creating capture directory: %w", err)
	}

	s.EndTime = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("captool: marshaling session: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("captool: writing session file: %w", err)
	}
	return nil
}

// LoadSession reads back a session previously written by Save.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("captool: reading session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("captool: parsing session file: %w", err)
	}
	s.filePath = path
	return &s, nil
}
