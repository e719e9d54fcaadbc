package canbus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brutella/can"
)

// FrameTap receives a copy of every frame the Reader ingests, for
// debug capture to disk. Implemented by captool.Tap.
type FrameTap interface {
	Write(canID uint32, data []byte) error
}

// Reader subscribes to a SocketCAN interface and pushes every frame it
// receives into a Buffer.
type Reader struct {
	bus    *can.Bus
	buffer *Buffer
	logger *log.Logger
	tap    FrameTap
}

// SetTap attaches a FrameTap that mirrors every ingested frame to disk.
// Pass nil to disable.
func (r *Reader) SetTap(tap FrameTap) {
	r.tap = tap
}

// NewReader opens the named SocketCAN interface (e.g. "can0") and wires a
// handler that pushes every received frame into buffer.
func NewReader(ifaceName string, buffer *Buffer, logger *log.Logger) (*Reader, error) {
	if logger == nil {
		logger = log.Default()
	}
	bus, err := can.NewBusForInterfaceWithName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("canbus: opening interface %s: %w", ifaceName, err)
	}

	r := &Reader{bus: bus, buffer: buffer, logger: logger}
	bus.Subscribe(handlerFunc(r.handle))
	return r, nil
}

// handlerFunc adapts a plain function to brutella/can's Handler interface.
type handlerFunc func(can.Frame)

func (f handlerFunc) Handle(frame can.Frame) { f(frame) }

// standardIDMax is the highest 11-bit standard CAN arbitration ID; IDs
// above it only arise from 29-bit extended frames.
const standardIDMax = 0x7FF

func (r *Reader) handle(frame can.Frame) {
	data := make([]byte, frame.Length)
	copy(data, frame.Data[:frame.Length])
	r.buffer.Push(Frame{
		ID:        uint32(frame.ID),
		Data:      data,
		Timestamp: time.Now(),
		Extended:  frame.ID > standardIDMax,
	})
	if r.tap != nil {
		if err := r.tap.Write(uint32(frame.ID), data); err != nil {
			r.logger.Printf("canbus: writing capture tap: %v", err)
		}
	}
}

// Run blocks, servicing the bus, until ctx is cancelled. brutella/can
// delivers frames to the subscribed handler from its read loop, which Run
// starts on its own goroutine, so Run only needs to wait for shutdown and
// then disconnect.
func (r *Reader) Run(ctx context.Context) error {
	go r.bus.ConnectAndPublish()
	<-ctx.Done()
	return r.Close()
}

// Close disconnects from the CAN bus.
func (r *Reader) Close() error {
	r.bus.Disconnect()
	return nil
}

// Publish sends a frame onto the bus, e.g. an OBD-II / UDS request.
func (r *Reader) Publish(id uint32, data []byte) error {
	var payload [8]byte
	copy(payload[:], data)
	frame := can.Frame{
		ID:     id,
		Length: uint8(len(data)),
		Data:   payload,
	}
	return r.bus.Publish(frame)
}
