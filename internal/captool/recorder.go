package captool

import (
	"fmt"
	"sync"
	"time"
)

// Recorder accumulates frames into a Session while the gateway runs, so
// a field issue can be replayed later against the decode pipeline
// without the vehicle present.
type Recorder struct {
	mu      sync.Mutex
	session *Session
	running bool
}

// NewRecorder creates a Recorder tagged with vin/gatewayID. Call Start
// before Record, and Stop to flush to disk.
func NewRecorder(vin, gatewayID string) *Recorder {
	return &Recorder{session: NewSession(vin, gatewayID)}
}

// Start begins accepting frames.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("captool: recorder already running")
	}
	r.running = true
	return nil
}

// Record appends one captured CAN frame, with its decoded form if the
// pipeline produced one for it.
func (r *Recorder) Record(canID uint32, data []byte, decoded interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return fmt.Errorf("captool: recorder is not running")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	r.session.AddFrame(Frame{
		Timestamp: time.Now(),
		CANID:     canID,
		Data:      cp,
		Decoded:   decoded,
	})
	return nil
}

// Stop ends the recording and writes the session to path ("" for a
// generated name under captures/).
func (r *Recorder) Stop(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return fmt.Errorf("captool: recorder is not running")
	}
	r.running = false
	return r.session.Save(path)
}

// FrameCount reports how many frames have been recorded so far.
func (r *Recorder) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.session.Frames)
}
