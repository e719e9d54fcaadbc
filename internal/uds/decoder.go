package uds

import (
	"fmt"
)

// dtcPrefixes maps the top two bits of a DTC's first byte to its letter
// prefix per ISO 15031-6 / SAE J2012.
var dtcPrefixes = [4]byte{'P', 'C', 'B', 'U'}

// Decode parses a raw UDS payload captured under the given 11/29-bit CAN
// arbitration ID. It validates the payload itself; callers don't need to
// call Validate separately.
func Decode(ecuAddress uint32, data []byte) (*Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("uds: empty payload")
	}

	result, err := Validate(ecuAddress, data)
	if err != nil {
		return nil, fmt.Errorf("uds: %w", err)
	}

	if data[0] == 0x7F {
		return decodeNegativeResponse(ecuAddress, data, result.Warnings)
	}

	serviceID := data[0]
	isResponse := serviceID&0x40 != 0 && ValidServiceIDs[serviceID&^0x40]
	baseService := serviceID
	if isResponse {
		baseService = serviceID &^ 0x40
	}

	msg := &Message{
		ServiceID:   Service(baseService),
		ServiceName: Service(baseService).Name(),
		ECUAddress:  ecuAddress,
		Data:        data,
		IsResponse:  isResponse,
		Warnings:    result.Warnings,
	}

	switch Service(baseService) {
	case ServiceReadDTCInformation:
		dtcs, err := decodeReadDTCInformation(data)
		if err != nil {
			return nil, fmt.Errorf("uds: %w", err)
		}
		msg.DTCInfo = dtcs
	case ServiceReadDataByIdentifier:
		info, err := decodeReadDataByIdentifier(data)
		if err != nil {
			return nil, fmt.Errorf("uds: %w", err)
		}
		msg.DataByIdentifier = info
	case ServiceTesterPresent:
		msg.TesterPresent = decodeTesterPresent(data)
	}

	return msg, nil
}

// decodeReadDTCInformation decodes a 0x19/0x59 Read DTC Information
// message. The sub-function byte and (on responses) a status-availability
// mask byte precede the 4-byte-per-code record block, so the record offset
// is 3 when more than one byte follows the service byte and 2 otherwise
// (a bare sub-function echo with no records).
func decodeReadDTCInformation(data []byte) ([]DTCInfo, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("read DTC information: payload too short")
	}
	// An unlisted sub-function is unusual but still structurally
	// decodable as a status-mask record block; Validate already
	// surfaced it as a warning rather than rejecting the frame here.

	offset := 2
	if len(data) > 2 {
		offset = 3
	}

	var dtcs []DTCInfo
	for i := offset; i+4 <= len(data); i += 4 {
		a, b, status := data[i], data[i+1], data[i+3]
		dtcs = append(dtcs, DTCInfo{
			Code:       decodeDTCCode(a, b),
			StatusByte: status,
			Severity:   dtcSeverity(status),
		})
	}
	return dtcs, nil
}

func decodeDTCCode(a, b byte) string {
	prefix := dtcPrefixes[(a>>6)&0x03]
	digit1 := (a >> 4) & 0x03
	return fmt.Sprintf("%c%d%X%02X", prefix, digit1, a&0x0F, b)
}

// dtcSeverity maps the DTC status byte's high bits to a coarse urgency
// bucket. Test Failed (0x80) is critical, Pending (0x40) high, Confirmed
// (0x20) medium; anything else is low.
func dtcSeverity(status byte) Severity {
	switch {
	case status&0x80 != 0:
		return SeverityCritical
	case status&0x40 != 0:
		return SeverityHigh
	case status&0x20 != 0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// decodeReadDataByIdentifier decodes a 0x22/0x62 response. Data
// identifier 0xF190 (VIN) is further decoded into a 17-character string
// when the response carries exactly that many printable bytes.
func decodeReadDataByIdentifier(data []byte) (*ReadDataByIdentifierInfo, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("read data by identifier: payload too short")
	}
	did := uint16(data[1])<<8 | uint16(data[2])
	payload := append([]byte(nil), data[3:]...)

	info := &ReadDataByIdentifierInfo{
		DataIdentifier: did,
		ResponseData:   payload,
	}
	if did == 0xF190 && len(payload) == 17 && isPrintableASCII(payload) {
		info.VIN = string(payload)
	}
	return info, nil
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}

// decodeTesterPresent decodes a 0x3E/0x7E message. Bit 7 of the
// sub-function byte is the suppressPosRspMsgIndicationBit.
func decodeTesterPresent(data []byte) *TesterPresentInfo {
	if len(data) < 2 {
		return &TesterPresentInfo{}
	}
	subFn := data[1]
	return &TesterPresentInfo{
		SubFunction:      subFn & 0x7F,
		SuppressResponse: subFn&0x80 != 0,
	}
}

// decodeNegativeResponse decodes a 0x7F message. Validate has already
// guaranteed at least 3 bytes before this is called.
func decodeNegativeResponse(ecuAddress uint32, data []byte, warnings []string) (*Message, error) {
	requested := data[1]
	code := data[2]
	return &Message{
		ServiceID:   Service(0x7F),
		ServiceName: "NEGATIVE_RESPONSE",
		ECUAddress:  ecuAddress,
		Data:        data,
		IsResponse:  true,
		Warnings:    warnings,
		NegativeResponse: &NegativeResponseInfo{
			RequestedService: requested,
			ResponseCode:     code,
			ResponseText:     NegativeResponseText(code),
		},
	}, nil
}
