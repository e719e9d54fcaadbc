package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/anodyne74/canedge/internal/canbus"
	"github.com/anodyne74/canedge/internal/obd2"
	"github.com/anodyne74/canedge/internal/uds"
)

// diagnosticRangeLow and diagnosticRangeHigh bound the CAN arbitration
// IDs carrying OBD-II/UDS diagnostic responses (ISO 15765-4).
const (
	diagnosticRangeLow  = 0x7E8
	diagnosticRangeHigh = 0x7EF
)

// pollTick is how often the decoder checks the ingest buffer for new
// frames when it's empty, bounding shutdown latency.
const pollTick = 5 * time.Millisecond

// DecoderStats counts per-kind decode outcomes for operator visibility.
type DecoderStats struct {
	FramesSeen    uint64
	UDSDecoded    uint64
	OBD2Decoded   uint64
	DecodeErrors  uint64
}

// Decoder drains an ingest buffer, attempts both UDS and OBD-II decode
// on frames in the diagnostic response range, and enqueues every
// non-empty decode onto the decoded queue. Neither protocol
// self-identifies on the wire, so the decoder tries both on every such
// frame and keeps whatever parses.
type Decoder struct {
	buffer *canbus.Buffer
	out    *Queue
	logger *log.Logger

	stats DecoderStats
}

// NewDecoder builds a Decoder reading from buffer and writing to out.
func NewDecoder(buffer *canbus.Buffer, out *Queue, logger *log.Logger) *Decoder {
	if logger == nil {
		logger = log.Default()
	}
	return &Decoder{buffer: buffer, out: out, logger: logger}
}

// Run drains frames until ctx is cancelled.
func (d *Decoder) Run(ctx context.Context) {
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drainRemaining()
			return
		case <-ticker.C:
			for {
				frame, ok := d.buffer.Pop()
				if !ok {
					break
				}
				d.process(frame)
			}
		}
	}
}

// drainRemaining processes any frames still buffered at shutdown, per
// the "CAN reader drains pending frames" shutdown contract.
func (d *Decoder) drainRemaining() {
	for {
		frame, ok := d.buffer.Pop()
		if !ok {
			return
		}
		d.process(frame)
	}
}

func (d *Decoder) process(frame canbus.Frame) {
	d.stats.FramesSeen++

	if frame.ID < diagnosticRangeLow || frame.ID > diagnosticRangeHigh {
		return
	}

	reqID := newRequestID()
	gotOne := false

	udsMsg, udsErr := uds.Decode(frame.ID, frame.Data)
	if udsErr == nil {
		d.stats.UDSDecoded++
		gotOne = true
		d.out.Enqueue(NewUDSMessage(udsMsg, reqID))
	}

	if obd2Msg, err := obd2.Decode(frame.Data); err == nil {
		d.stats.OBD2Decoded++
		gotOne = true
		d.out.Enqueue(NewOBD2Message(obd2Msg, frame.ID, reqID))
	}

	if !gotOne {
		d.stats.DecodeErrors++
		d.logInvalidFrame(frame, udsErr)
	}
}

// logInvalidFrame logs a frame neither decoder could parse, splitting the
// service ID from the sub-function/data bytes so an operator scanning
// logs can spot a single misbehaving service without hex-parsing the
// whole payload by hand.
func (d *Decoder) logInvalidFrame(frame canbus.Frame, udsErr error) {
	if len(frame.Data) == 0 {
		d.logger.Printf("decode failed for frame id=0x%03X: empty payload", frame.ID)
		return
	}
	d.logger.Printf("decode failed for frame id=0x%03X service=0x%02X sub-function/data=% X: %v",
		frame.ID, frame.Data[0], frame.Data[1:], udsErr)
}

// Stats returns a snapshot of decode counters.
func (d *Decoder) Stats() DecoderStats { return d.stats }

func newRequestID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
