package uds

import "fmt"

// ValidServiceIDs are the request/response SIDs this decoder recognizes.
// Validate rejects services outside this set with INVALID_SERVICE_ID.
var ValidServiceIDs = map[byte]bool{
	0x10: true, 0x11: true, 0x14: true, 0x19: true, 0x22: true,
	0x23: true, 0x24: true, 0x27: true, 0x28: true, 0x2A: true,
	0x2C: true, 0x2E: true, 0x2F: true, 0x31: true, 0x34: true,
	0x35: true, 0x36: true, 0x37: true, 0x38: true, 0x3D: true,
	0x3E: true, 0x83: true, 0x84: true, 0x85: true, 0x86: true,
	0x87: true,
}

// MinMessageLengths gives the minimum payload length (service byte
// included) below which a message of that service cannot be decoded.
var MinMessageLengths = map[byte]int{
	0x10: 2,
	0x11: 2,
	0x14: 4,
	0x19: 2,
	0x22: 3,
	0x23: 4,
	0x27: 2,
	0x2E: 4,
	0x3E: 2,
	0x31: 4,
}

// ValidDTCSubFunctions are the Read DTC Information (0x19) sub-functions
// this decoder structurally decodes. 0x02 (reportDTCByStatusMask) is the
// most common on production ECUs. A sub-function outside this set is
// unusual, not invalid: it still warrants decoding, just with a warning.
var ValidDTCSubFunctions = map[byte]bool{
	0x01: true, 0x02: true, 0x03: true, 0x04: true, 0x06: true,
	0x0A: true, 0x0B: true, 0x0C: true, 0x0D: true, 0x0E: true,
}

// ValidationError reports why a raw UDS payload was rejected outright,
// before decoding was attempted. Code is a stable, machine-checkable
// label; Reason is the human-readable detail. Only conditions that make
// a payload genuinely undecodable are errors; anything merely unusual
// is folded into Result.Warnings instead so the frame still reaches the
// decoder.
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Result carries non-fatal diagnostics for a payload that validated
// successfully but looked unusual enough to flag.
type Result struct {
	Warnings []string
}

// Validate checks a raw UDS payload captured from ecuAddress is
// well-formed enough to decode. A negative response (0x7F) of at least
// 3 bytes always validates, carrying the decoded NRC as a warning rather
// than an error. A recognized service with an odd but structurally-parseable
// sub-function (an unlisted Read DTC Information sub-function, a
// non-zero Tester Present sub-function) also validates with a warning.
// Only an empty payload, an unrecognized service ID, or a payload
// shorter than its service's minimum length are hard errors.
func Validate(ecuAddress uint32, data []byte) (Result, error) {
	if len(data) < 1 {
		return Result{}, &ValidationError{Code: "EMPTY_PAYLOAD", Reason: "empty payload"}
	}

	serviceID := data[0]
	if serviceID == 0x7F {
		return validateNegativeResponse(data)
	}

	isResponse := serviceID&0x40 != 0
	baseService := serviceID
	if isResponse {
		baseService = serviceID &^ 0x40
	}

	if !ValidServiceIDs[baseService] {
		return Result{}, &ValidationError{Code: "INVALID_SERVICE_ID", Reason: fmt.Sprintf("unrecognized service id 0x%02X from ECU 0x%03X", serviceID, ecuAddress)}
	}
	if min, ok := MinMessageLengths[baseService]; ok && len(data) < min {
		return Result{}, &ValidationError{Code: "PAYLOAD_TOO_SHORT", Reason: fmt.Sprintf("payload length %d below minimum %d for service 0x%02X", len(data), min, baseService)}
	}

	var warnings []string
	switch baseService {
	case byte(ServiceReadDTCInformation):
		if len(data) >= 2 {
			if subFn := data[1]; !ValidDTCSubFunctions[subFn] {
				warnings = append(warnings, fmt.Sprintf("unknown DTC sub-function 0x%02X", subFn))
			}
		}
	case byte(ServiceTesterPresent):
		if len(data) >= 2 {
			if subFn := data[1] &^ 0x80; subFn != 0x00 {
				warnings = append(warnings, fmt.Sprintf("non-standard tester present sub-function 0x%02X", subFn))
			}
		}
	}

	return Result{Warnings: warnings}, nil
}

// validateNegativeResponse succeeds for any 0x7F carrying the requested
// service and response code bytes: a 0x7F is a valid protocol message in
// its own right, just one reporting that some other request failed, so
// it's surfaced as a warning rather than rejected. A 0x7F shorter than
// 3 bytes is an INVALID_NEGATIVE_RESPONSE error.
func validateNegativeResponse(data []byte) (Result, error) {
	if len(data) < 3 {
		return Result{}, &ValidationError{Code: "INVALID_NEGATIVE_RESPONSE", Reason: "negative response payload too short"}
	}
	requested := data[1]
	code := data[2]
	return Result{Warnings: []string{
		fmt.Sprintf("negative response for service 0x%02X: %s", requested, NegativeResponseText(code)),
	}}, nil
}
