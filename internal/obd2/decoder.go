package obd2

import (
	"fmt"
	"math"
)

// round2 rounds v to two decimal places, matching the output precision
// every Parameter value is reported at.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var dtcPrefixes = [4]byte{'P', 'C', 'B', 'U'}

// Decode parses a raw Mode 01 or Mode 03 response. The leading byte must
// be the mode-plus-0x40 response echo (0x41 or 0x43).
func Decode(data []byte) (*Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("obd2: empty payload")
	}

	switch data[0] {
	case 0x41:
		return decodeMode01(data)
	case 0x43:
		return decodeMode03(data)
	default:
		return nil, fmt.Errorf("obd2: unsupported response mode 0x%02X", data[0])
	}
}

func decodeMode01(data []byte) (*Message, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("obd2: mode 01 payload too short")
	}
	pid := data[1]
	def, ok := PIDDefinitions[pid]
	if !ok {
		// A PID outside the first-class table is not an error: report the
		// mode with no parameters rather than rejecting the frame.
		return &Message{Mode: 0x01}, nil
	}
	if len(data)-2 < def.Bytes {
		return nil, fmt.Errorf("obd2: PID 0x%02X needs %d data bytes, got %d", pid, def.Bytes, len(data)-2)
	}

	value := round2(def.Formula(data[2 : 2+def.Bytes]))
	return &Message{
		Mode: 0x01,
		Parameters: []Parameter{{
			PID:   pid,
			Name:  def.Name,
			Value: value,
			Unit:  def.Unit,
		}},
	}, nil
}

// decodeMode03 decodes a stored-DTC report: a count byte followed by
// 2-byte DTC records (the UDS DTC form without the manufacturer-specific
// fifth digit). All-zero records are padding and are skipped.
func decodeMode03(data []byte) (*Message, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("obd2: mode 03 payload too short")
	}
	count := int(data[1])
	body := data[2:]

	var dtcs []string
	for i := 0; i < count && i*2+2 <= len(body); i++ {
		a, b := body[i*2], body[i*2+1]
		if a == 0 && b == 0 {
			continue
		}
		dtcs = append(dtcs, decodeDTC2Byte(a, b))
	}
	return &Message{Mode: 0x03, DTCs: dtcs}, nil
}

func decodeDTC2Byte(a, b byte) string {
	prefix := dtcPrefixes[(a>>6)&0x03]
	digit1 := (a >> 4) & 0x03
	return fmt.Sprintf("%c%d%X%02X", prefix, digit1, a&0x0F, b)
}
