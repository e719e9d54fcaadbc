package uds

import (
	"regexp"
	"testing"
)

func TestDecodeReadDTCInformationByStatusMask(t *testing.T) {
	// 0x59 (response), sub-function 0x02, status-availability mask 0xFF,
	// one DTC record: P0301 (cylinder 1 misfire) with status 0x08.
	data := []byte{0x59, 0x02, 0xFF, 0x03, 0x01, 0x00, 0x08}

	msg, err := Decode(0x7E8, data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.ServiceID != ServiceReadDTCInformation {
		t.Fatalf("expected service 0x19, got 0x%02X", byte(msg.ServiceID))
	}
	if len(msg.DTCInfo) != 1 {
		t.Fatalf("expected 1 DTC, got %d", len(msg.DTCInfo))
	}
	if msg.DTCInfo[0].Code != "P0301" {
		t.Errorf("expected code P0301, got %s", msg.DTCInfo[0].Code)
	}
	if msg.DTCInfo[0].Severity != SeverityLow {
		t.Errorf("expected low severity for status 0x08, got %s", msg.DTCInfo[0].Severity)
	}
}

func TestDecodeReadDTCInformationMultipleRecords(t *testing.T) {
	data := []byte{
		0x59, 0x02, 0xFF,
		0x03, 0x01, 0x00, 0x80, // P0301, critical
		0xC1, 0x23, 0x00, 0x20, // U0123, medium
	}
	msg, err := Decode(0x7E8, data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(msg.DTCInfo) != 2 {
		t.Fatalf("expected 2 DTCs, got %d", len(msg.DTCInfo))
	}
	if msg.DTCInfo[0].Severity != SeverityCritical {
		t.Errorf("expected critical severity, got %s", msg.DTCInfo[0].Severity)
	}
	if msg.DTCInfo[1].Code != "U0123" {
		t.Errorf("expected U0123, got %s", msg.DTCInfo[1].Code)
	}
}

func TestDecodeReadDTCInformationWarnsOnUnsupportedSubFunction(t *testing.T) {
	data := []byte{0x19, 0x99, 0xFF}
	msg, err := Decode(0x7E0, data)
	if err != nil {
		t.Fatalf("expected sub-function 0x99 to still decode, got error: %v", err)
	}
	if len(msg.Warnings) == 0 {
		t.Error("expected a warning for unlisted DTC sub-function 0x99")
	}
}

func TestDecodeReadDataByIdentifierVIN(t *testing.T) {
	vin := "1FTFW1ET9EFA12345" // 17 chars
	data := append([]byte{0x62, 0xF1, 0x90}, []byte(vin)...)

	msg, err := Decode(0x7E8, data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.DataByIdentifier == nil {
		t.Fatal("expected DataByIdentifier to be populated")
	}
	if msg.DataByIdentifier.VIN != vin {
		t.Errorf("expected VIN %s, got %s", vin, msg.DataByIdentifier.VIN)
	}
}

func TestDecodeReadDataByIdentifierNonVIN(t *testing.T) {
	data := []byte{0x62, 0xF1, 0x00, 0x01, 0x02}
	msg, err := Decode(0x7E8, data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.DataByIdentifier.VIN != "" {
		t.Errorf("expected no VIN decode for DID 0xF100, got %q", msg.DataByIdentifier.VIN)
	}
	if len(msg.DataByIdentifier.ResponseData) != 2 {
		t.Errorf("expected 2 bytes of response data, got %d", len(msg.DataByIdentifier.ResponseData))
	}
}

func TestDecodeTesterPresent(t *testing.T) {
	msg, err := Decode(0x7E0, []byte{0x3E, 0x80})
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if !msg.TesterPresent.SuppressResponse {
		t.Error("expected suppress-response bit set")
	}
	if msg.TesterPresent.SubFunction != 0x00 {
		t.Errorf("expected sub-function 0x00, got 0x%02X", msg.TesterPresent.SubFunction)
	}
}

func TestDecodeNegativeResponse(t *testing.T) {
	data := []byte{0x7F, 0x22, 0x31}
	msg, err := Decode(0x7E8, data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if msg.NegativeResponse == nil {
		t.Fatal("expected NegativeResponse to be populated")
	}
	if msg.NegativeResponse.ResponseCode != 0x31 {
		t.Errorf("expected response code 0x31, got 0x%02X", msg.NegativeResponse.ResponseCode)
	}
	if msg.NegativeResponse.ResponseText != "Request Out Of Range" {
		t.Errorf("unexpected response text: %s", msg.NegativeResponse.ResponseText)
	}
	if len(msg.Warnings) == 0 {
		t.Error("expected a negative response to carry a warning, not an error")
	}
}

func TestValidateRejectsShortPayload(t *testing.T) {
	if _, err := Validate(0x7E0, []byte{0x22, 0xF1}); err == nil {
		t.Error("expected error for payload shorter than minimum for 0x22")
	}
}

func TestValidateAcceptsMinimumLength(t *testing.T) {
	if _, err := Validate(0x7E0, []byte{0x3E, 0x00}); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsUnknownService(t *testing.T) {
	_, err := Validate(0x7E0, []byte{0xFF, 0x00})
	if err == nil {
		t.Fatal("expected error for unrecognized service id")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Code != "INVALID_SERVICE_ID" {
		t.Errorf("expected code INVALID_SERVICE_ID, got %s", verr.Code)
	}
}

func TestValidateNegativeResponseAlwaysValid(t *testing.T) {
	result, err := Validate(0x7E0, []byte{0x7F, 0x22, 0x31})
	if err != nil {
		t.Fatalf("expected negative response to validate, got error: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning describing the negative response")
	}
}

func TestValidateWarnsOnNonStandardTesterPresentSubFunction(t *testing.T) {
	result, err := Validate(0x7E0, []byte{0x3E, 0x05})
	if err != nil {
		t.Fatalf("expected non-standard sub-function to still validate, got error: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning for non-zero tester present sub-function")
	}
}

func TestValidateAcceptsStandardTesterPresentWithoutWarning(t *testing.T) {
	result, err := Validate(0x7E0, []byte{0x3E, 0x80})
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings for standard sub-function with suppress bit set, got %v", result.Warnings)
	}
}

func TestDecodedDTCCodesMatchFormat(t *testing.T) {
	data := []byte{
		0x59, 0x02, 0xFF,
		0x03, 0x01, 0x00, 0x08, // P0301, low
		0x04, 0x20, 0x00, 0x48, // P0420, high
	}
	msg, err := Decode(0x7E0, data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	dtcPattern := regexp.MustCompile(`^[PCBU][0-3][0-9A-F]{3}$`)
	for _, d := range msg.DTCInfo {
		if !dtcPattern.MatchString(d.Code) {
			t.Errorf("DTC code %q does not match expected format", d.Code)
		}
	}
}
