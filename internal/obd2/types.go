// Package obd2 decodes SAE J1979 Mode 01 (current data) and Mode 03
// (stored DTC) responses.
package obd2

import "fmt"

// PIDDefinition describes how to decode one Mode 01 parameter ID.
type PIDDefinition struct {
	PID         byte
	Name        string
	Unit        string
	Bytes       int // number of data bytes (A, [B]) following the PID echo
	Formula     func(data []byte) float64
}

// PIDDefinitions is the supported-PID table for Mode 01. Formulas follow
// the standard SAE J1979 definitions.
var PIDDefinitions = map[byte]PIDDefinition{
	0x04: {
		PID: 0x04, Name: "ENGINE_LOAD", Unit: "%", Bytes: 1,
		Formula: func(d []byte) float64 { return float64(d[0]) / 255.0 * 100.0 },
	},
	0x05: {
		PID: 0x05, Name: "COOLANT_TEMP", Unit: "°C", Bytes: 1,
		Formula: func(d []byte) float64 { return float64(d[0]) - 40.0 },
	},
	0x0C: {
		PID: 0x0C, Name: "ENGINE_RPM", Unit: "rpm", Bytes: 2,
		Formula: func(d []byte) float64 { return (256.0*float64(d[0]) + float64(d[1])) / 4.0 },
	},
	0x0D: {
		PID: 0x0D, Name: "VEHICLE_SPEED", Unit: "km/h", Bytes: 1,
		Formula: func(d []byte) float64 { return float64(d[0]) },
	},
	0x0E: {
		PID: 0x0E, Name: "TIMING_ADVANCE", Unit: "°", Bytes: 1,
		Formula: func(d []byte) float64 { return float64(d[0])/2.0 - 64.0 },
	},
	0x0F: {
		PID: 0x0F, Name: "INTAKE_AIR_TEMP", Unit: "°C", Bytes: 1,
		Formula: func(d []byte) float64 { return float64(d[0]) - 40.0 },
	},
	0x10: {
		PID: 0x10, Name: "MAF_AIR_FLOW_RATE", Unit: "g/s", Bytes: 2,
		Formula: func(d []byte) float64 { return (256.0*float64(d[0]) + float64(d[1])) / 100.0 },
	},
	0x11: {
		PID: 0x11, Name: "THROTTLE_POSITION", Unit: "%", Bytes: 1,
		Formula: func(d []byte) float64 { return float64(d[0]) / 255.0 * 100.0 },
	},
	0x2F: {
		PID: 0x2F, Name: "FUEL_TANK_LEVEL", Unit: "%", Bytes: 1,
		Formula: func(d []byte) float64 { return float64(d[0]) / 255.0 * 100.0 },
	},
	0x42: {
		PID: 0x42, Name: "CONTROL_MODULE_VOLTAGE", Unit: "V", Bytes: 2,
		Formula: func(d []byte) float64 { return (256.0*float64(d[0]) + float64(d[1])) / 1000.0 },
	},
}

// Parameter is a single decoded Mode 01 value.
type Parameter struct {
	PID   byte
	Name  string
	Value float64
	Unit  string
}

// Message is a fully decoded OBD-II message (either a Mode 01 parameter
// read or a Mode 03 stored-DTC report).
type Message struct {
	Mode       byte
	Parameters []Parameter
	DTCs       []string
}

func (m PIDDefinition) String() string {
	return fmt.Sprintf("PID 0x%02X (%s)", m.PID, m.Name)
}
