package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/anodyne74/canedge/internal/obd2"
	"github.com/anodyne74/canedge/internal/spool"
	"github.com/anodyne74/canedge/internal/uds"
)

// Spooler drains the decoded queue and hands each message to the local
// spool, translating the pipeline's tagged-union Message into the
// spool's flat, wire-ready Message shape.
type Spooler struct {
	in        *Queue
	store     *spool.Store
	vin       string
	gatewayID string
	logger    *log.Logger
}

// NewSpooler builds a Spooler reading from in and writing into store.
func NewSpooler(in *Queue, store *spool.Store, vin, gatewayID string, logger *log.Logger) *Spooler {
	if logger == nil {
		logger = log.Default()
	}
	return &Spooler{in: in, store: store, vin: vin, gatewayID: gatewayID, logger: logger}
}

// Run drains messages from in until ctx is cancelled; once per second it
// also checks the open batch and flushes it if it has reached the age
// threshold, so under light traffic a batch sits open at most about a
// second past that threshold.
func (s *Spooler) Run(ctx context.Context) {
	flushTick := time.NewTicker(1 * time.Second)
	defer flushTick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainRemaining()
			if err := s.store.Flush(); err != nil {
				s.logger.Printf("spooler: final flush: %v", err)
			}
			return
		case msg, ok := <-s.in.Chan():
			if !ok {
				return
			}
			s.in.Dequeued()
			s.spoolOne(msg)
		case <-flushTick.C:
			if err := s.store.FlushIfDue(); err != nil {
				s.logger.Printf("spooler: periodic flush: %v", err)
			}
		}
	}
}

func (s *Spooler) drainRemaining() {
	for {
		select {
		case msg, ok := <-s.in.Chan():
			if !ok {
				return
			}
			s.in.Dequeued()
			s.spoolOne(msg)
		default:
			return
		}
	}
}

func (s *Spooler) spoolOne(msg Message) {
	record, ok := toSpoolMessage(msg, s.vin, s.gatewayID)
	if !ok {
		return
	}
	if err := s.store.Enqueue(record); err != nil {
		s.logger.Printf("spooler: enqueuing message %s: %v", record.MessageID, err)
	}
}

// toSpoolMessage flattens a decoded pipeline Message into the spool's
// wire shape. Returns ok=false for message kinds the spool doesn't
// persist (a raw, undecoded CAN frame on its own carries nothing a
// subscriber downstream could consume).
func toSpoolMessage(msg Message, vin, gatewayID string) (spool.Message, bool) {
	base := spool.Message{
		MessageID: msg.RequestID,
		VIN:       vin,
		Timestamp: msg.Timestamp,
		GatewayID: gatewayID,
	}

	switch msg.Kind {
	case KindOBD2:
		base.TelemetryType = "obd2"
		base.Data = obd2Fields(msg.OBD2)
		return base, true
	case KindUDS:
		base.TelemetryType = "uds"
		base.Data = udsFields(msg.UDS)
		return base, true
	default:
		return spool.Message{}, false
	}
}

func obd2Fields(m *obd2.Message) map[string]any {
	fields := map[string]any{"mode": m.Mode}
	if len(m.Parameters) > 0 {
		params := make(map[string]any, len(m.Parameters))
		for _, p := range m.Parameters {
			params[p.Name] = map[string]any{"value": p.Value, "unit": p.Unit, "pid": p.PID}
		}
		fields["parameters"] = params
	}
	if len(m.DTCs) > 0 {
		fields["dtcs"] = m.DTCs
	}
	return fields
}

func udsFields(m *uds.Message) map[string]any {
	fields := map[string]any{
		"serviceId":   byte(m.ServiceID),
		"serviceName": m.ServiceName,
		"ecuAddress":  m.ECUAddress,
	}
	if len(m.DTCInfo) > 0 {
		dtcs := make([]map[string]any, len(m.DTCInfo))
		for i, d := range m.DTCInfo {
			dtcs[i] = map[string]any{"code": d.Code, "status": d.StatusByte, "severity": string(d.Severity)}
		}
		fields["dtcs"] = dtcs
	}
	if m.DataByIdentifier != nil {
		fields["dataIdentifier"] = m.DataByIdentifier.DataIdentifier
		if m.DataByIdentifier.VIN != "" {
			fields["vin"] = m.DataByIdentifier.VIN
		}
	}
	if m.TesterPresent != nil {
		fields["testerPresent"] = true
	}
	if m.NegativeResponse != nil {
		fields["negativeResponse"] = map[string]any{
			"requestedService": m.NegativeResponse.RequestedService,
			"responseCode":     m.NegativeResponse.ResponseCode,
			"responseText":     m.NegativeResponse.ResponseText,
		}
	}
	if len(m.Warnings) > 0 {
		fields["warnings"] = m.Warnings
	}
	return fields
}
