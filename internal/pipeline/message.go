// Package pipeline wires the ingest buffer, decoder, spooler, and
// publisher stages together over bounded channels.
package pipeline

import (
	"time"

	"github.com/anodyne74/canedge/internal/canbus"
	"github.com/anodyne74/canedge/internal/obd2"
	"github.com/anodyne74/canedge/internal/uds"
)

// Kind discriminates which payload a Message carries.
type Kind string

const (
	KindCANFrame Kind = "can_frame"
	KindOBD2     Kind = "obd2"
	KindUDS      Kind = "uds"
)

// Message is a tagged union handed from one pipeline stage to the next.
// Exactly one of CANFrame, OBD2, UDS is populated, selected by Kind.
type Message struct {
	Kind      Kind
	CANFrame  *canbus.Frame
	OBD2      *obd2.Message
	UDS       *uds.Message
	SourceECU uint32
	Stage     string
	Timestamp time.Time
	RequestID string
}

// NewCANFrameMessage wraps a raw frame fresh off the bus.
func NewCANFrameMessage(frame canbus.Frame, requestID string) Message {
	return Message{
		Kind:      KindCANFrame,
		CANFrame:  &frame,
		SourceECU: frame.ID,
		Stage:     "can_reader",
		Timestamp: frame.Timestamp,
		RequestID: requestID,
	}
}

// NewOBD2Message wraps a decoded OBD-II message.
func NewOBD2Message(msg *obd2.Message, ecu uint32, requestID string) Message {
	return Message{
		Kind:      KindOBD2,
		OBD2:      msg,
		SourceECU: ecu,
		Stage:     "decoder",
		Timestamp: time.Now(),
		RequestID: requestID,
	}
}

// NewUDSMessage wraps a decoded UDS message.
func NewUDSMessage(msg *uds.Message, requestID string) Message {
	return Message{
		Kind:      KindUDS,
		UDS:       msg,
		SourceECU: msg.ECUAddress,
		Stage:     "decoder",
		Timestamp: time.Now(),
		RequestID: requestID,
	}
}
