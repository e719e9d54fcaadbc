// Package uds decodes and validates Unified Diagnostic Services (ISO 14229)
// messages carried over CAN.
package uds

import "fmt"

// Service identifies a UDS service by its request-side SID.
type Service byte

// Known UDS services with a dedicated name. Only 0x19, 0x22 and 0x3E get
// a structural decode; the others decode to name and raw payload. Services
// outside this set are rejected by Validate, so Decode returns no Message
// for them.
const (
	ServiceDiagnosticSessionControl Service = 0x10
	ServiceECUReset                 Service = 0x11
	ServiceClearDiagnosticInfo      Service = 0x14
	ServiceReadDTCInformation       Service = 0x19
	ServiceReadDataByIdentifier     Service = 0x22
	ServiceReadMemoryByAddress      Service = 0x23
	ServiceReadScalingDataByID      Service = 0x24
	ServiceSecurityAccess           Service = 0x27
	ServiceCommunicationControl     Service = 0x28
	ServiceReadDataByPeriodicID     Service = 0x2A
	ServiceDynamicallyDefineDataID  Service = 0x2C
	ServiceWriteDataByIdentifier    Service = 0x2E
	ServiceInputOutputControlByID   Service = 0x2F
	ServiceRoutineControl           Service = 0x31
	ServiceRequestDownload          Service = 0x34
	ServiceRequestUpload            Service = 0x35
	ServiceTransferData             Service = 0x36
	ServiceRequestTransferExit      Service = 0x37
	ServiceRequestFileTransfer      Service = 0x38
	ServiceWriteMemoryByAddress     Service = 0x3D
	ServiceTesterPresent            Service = 0x3E
	ServiceAccessTimingParameter    Service = 0x83
	ServiceSecuredDataTransmission  Service = 0x84
	ServiceControlDTCSetting        Service = 0x85
	ServiceResponseOnEvent          Service = 0x86
	ServiceLinkControl              Service = 0x87
)

var serviceNames = map[Service]string{
	ServiceDiagnosticSessionControl: "DIAGNOSTIC_SESSION_CONTROL",
	ServiceECUReset:                 "ECU_RESET",
	ServiceClearDiagnosticInfo:      "CLEAR_DIAGNOSTIC_INFORMATION",
	ServiceReadDTCInformation:       "READ_DTC_INFORMATION",
	ServiceReadDataByIdentifier:     "READ_DATA_BY_IDENTIFIER",
	ServiceReadMemoryByAddress:      "READ_MEMORY_BY_ADDRESS",
	ServiceReadScalingDataByID:      "READ_SCALING_DATA_BY_IDENTIFIER",
	ServiceSecurityAccess:           "SECURITY_ACCESS",
	ServiceCommunicationControl:     "COMMUNICATION_CONTROL",
	ServiceReadDataByPeriodicID:     "READ_DATA_BY_PERIODIC_IDENTIFIER",
	ServiceDynamicallyDefineDataID:  "DYNAMICALLY_DEFINE_DATA_IDENTIFIER",
	ServiceWriteDataByIdentifier:    "WRITE_DATA_BY_IDENTIFIER",
	ServiceInputOutputControlByID:   "INPUT_OUTPUT_CONTROL_BY_IDENTIFIER",
	ServiceRoutineControl:           "ROUTINE_CONTROL",
	ServiceRequestDownload:          "REQUEST_DOWNLOAD",
	ServiceRequestUpload:            "REQUEST_UPLOAD",
	ServiceTransferData:             "TRANSFER_DATA",
	ServiceRequestTransferExit:      "REQUEST_TRANSFER_EXIT",
	ServiceRequestFileTransfer:      "REQUEST_FILE_TRANSFER",
	ServiceWriteMemoryByAddress:     "WRITE_MEMORY_BY_ADDRESS",
	ServiceTesterPresent:            "TESTER_PRESENT",
	ServiceAccessTimingParameter:    "ACCESS_TIMING_PARAMETER",
	ServiceSecuredDataTransmission:  "SECURED_DATA_TRANSMISSION",
	ServiceControlDTCSetting:        "CONTROL_DTC_SETTING",
	ServiceResponseOnEvent:          "RESPONSE_ON_EVENT",
	ServiceLinkControl:              "LINK_CONTROL",
}

// Name returns the human-readable service name, or a synthesized
// UNKNOWN_SERVICE_0xNN label for services this package has no entry for.
func (s Service) Name() string {
	if name, ok := serviceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_SERVICE_0x%02X", byte(s))
}

// Severity is the coarse DTC urgency derived from the top bits of the
// DTC's status byte.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// DTCInfo is a single diagnostic trouble code decoded from a Read DTC
// Information response.
type DTCInfo struct {
	Code       string   // 5-char [PCBU]DDDD, manufacturer digit discarded
	StatusByte byte
	Severity   Severity
}

// NegativeResponseCodes maps ISO 14229 negative response codes (byte 2 of a
// 0x7F negative response) to their textual meaning.
var NegativeResponseCodes = map[byte]string{
	0x10: "General Reject",
	0x11: "Service Not Supported",
	0x12: "Sub-Function Not Supported",
	0x13: "Incorrect Message Length Or Invalid Format",
	0x14: "Response Too Long",
	0x21: "Busy Repeat Request",
	0x22: "Conditions Not Correct",
	0x24: "Request Sequence Error",
	0x25: "No Response From Sub-Net Component",
	0x26: "Failure Prevents Execution Of Requested Action",
	0x31: "Request Out Of Range",
	0x33: "Security Access Denied",
	0x35: "Invalid Key",
	0x36: "Exceed Number Of Attempts",
	0x37: "Required Time Delay Not Expired",
	0x70: "Upload Download Not Accepted",
	0x71: "Transfer Data Suspended",
	0x72: "General Programming Failure",
	0x73: "Wrong Block Sequence Counter",
	0x78: "Request Correctly Received - Response Pending",
	0x7E: "Sub-Function Not Supported In Active Session",
	0x7F: "Service Not Supported In Active Session",
}

// NegativeResponseText returns the textual meaning of a negative response
// code, or a synthesized label for codes this table doesn't carry.
func NegativeResponseText(code byte) string {
	if text, ok := NegativeResponseCodes[code]; ok {
		return text
	}
	return fmt.Sprintf("Unknown response code: 0x%02X", code)
}

// TesterPresentInfo is the decoded payload of a 0x3E Tester Present message.
type TesterPresentInfo struct {
	SubFunction        byte
	SuppressResponse   bool
}

// ReadDataByIdentifierInfo is the decoded payload of a 0x22 response.
type ReadDataByIdentifierInfo struct {
	DataIdentifier uint16
	ResponseData   []byte
	VIN            string // populated only when DataIdentifier == 0xF190 and the payload is 17 printable ASCII bytes
}

// NegativeResponseInfo is the decoded payload of a 0x7F negative response.
type NegativeResponseInfo struct {
	RequestedService byte
	ResponseCode     byte
	ResponseText     string
}

// Message is a fully decoded UDS message.
type Message struct {
	ServiceID   Service
	ServiceName string
	ECUAddress  uint32
	Data        []byte
	IsResponse  bool

	// Warnings carries non-fatal validation diagnostics (an unlisted
	// sub-function, a decoded negative response) that didn't stop this
	// message from decoding.
	Warnings []string

	DTCInfo            []DTCInfo
	DataByIdentifier   *ReadDataByIdentifierInfo
	TesterPresent      *TesterPresentInfo
	NegativeResponse   *NegativeResponseInfo
}
