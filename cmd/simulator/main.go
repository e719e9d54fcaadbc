// Command simulator injects realistic OBD-II and UDS response traffic
// onto a CAN interface (typically a vcan0 virtual interface), so the
// gateway can be exercised end-to-end without a vehicle attached.
package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/brutella/can"
)

// vehicleState is the simulated engine state the frame encoders read
// from on each tick.
type vehicleState struct {
	rpm         float64
	speed       float64
	coolantTemp float64
	dtcs        []string
}

var testDTCs = []string{"P0087", "P0088", "P0191", "P0401", "P0234"}

func main() {
	iface := flag.String("iface", "vcan0", "CAN interface to send simulated frames on")
	period := flag.Duration("period", 100*time.Millisecond, "interval between simulated frame bursts")
	flag.Parse()

	bus, err := can.NewBusForInterfaceWithName(*iface)
	if err != nil {
		log.Fatalf("simulator: opening interface %s: %v", *iface, err)
	}
	go bus.ConnectAndPublish()
	defer bus.Disconnect()

	state := &vehicleState{rpm: 800, speed: 0, coolantTemp: 85}

	go injectDTCsPeriodically(state)

	ticker := time.NewTicker(*period)
	defer ticker.Stop()
	for range ticker.C {
		step(state)
		sendFrame(bus, 0x7E8, encodeEngineRPM(state.rpm))
		sendFrame(bus, 0x7E9, encodeVehicleSpeed(state.speed))
		sendFrame(bus, 0x7EA, encodeCoolantTemp(state.coolantTemp))
		if len(state.dtcs) > 0 {
			sendFrame(bus, 0x7EB, encodeStoredDTCs(state.dtcs))
		}
	}
}

func injectDTCsPeriodically(state *vehicleState) {
	for {
		time.Sleep(30 * time.Second)
		if rand.Float64() >= 0.3 {
			continue
		}
		candidate := testDTCs[rand.Intn(len(testDTCs))]
		if !containsDTC(state.dtcs, candidate) {
			state.dtcs = append(state.dtcs, candidate)
			log.Printf("simulator: injected %s", candidate)
		}
	}
}

func containsDTC(dtcs []string, target string) bool {
	for _, d := range dtcs {
		if d == target {
			return true
		}
	}
	return false
}

func step(s *vehicleState) {
	s.rpm = clamp(s.rpm+(rand.Float64()-0.5)*100, 800, 3000)
	s.speed = clamp(s.speed+(rand.Float64()-0.5)*2, 0, 120)
	s.coolantTemp = clamp(s.coolantTemp+(rand.Float64()-0.5)*0.5, 80, 95)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func sendFrame(bus *can.Bus, id uint32, data []byte) {
	var payload [8]byte
	copy(payload[:], data)
	frame := can.Frame{ID: id, Length: uint8(len(data)), Data: payload}
	if err := bus.Publish(frame); err != nil {
		log.Printf("simulator: sending frame %#x: %v", id, err)
	}
}

// encodeEngineRPM builds an OBD-II Mode 01 PID 0x0C response: two
// bytes encode (256A+B)/4 RPM.
func encodeEngineRPM(rpm float64) []byte {
	raw := uint16(rpm * 4)
	return []byte{0x41, 0x0C, byte(raw >> 8), byte(raw)}
}

// encodeVehicleSpeed builds a Mode 01 PID 0x0D response: one byte, km/h.
func encodeVehicleSpeed(speed float64) []byte {
	return []byte{0x41, 0x0D, byte(speed)}
}

// encodeCoolantTemp builds a Mode 01 PID 0x05 response: one byte,
// A-40 degrees C.
func encodeCoolantTemp(tempC float64) []byte {
	return []byte{0x41, 0x05, byte(tempC + 40)}
}

// encodeStoredDTCs builds a Mode 03 response: a count byte followed by
// 2-byte DTC records.
func encodeStoredDTCs(dtcs []string) []byte {
	out := []byte{0x43, byte(len(dtcs))}
	for _, code := range dtcs {
		out = append(out, encodeDTC2Byte(code)...)
	}
	return out
}

// encodeDTC2Byte inverts the OBD-II 2-byte DTC decode: prefix + first
// digit pack into the top nibble of byte A, remaining three hex digits
// fill the low nibble of A and all of byte B.
func encodeDTC2Byte(code string) []byte {
	if len(code) != 5 {
		return []byte{0, 0}
	}
	var prefixBits byte
	switch code[0] {
	case 'P':
		prefixBits = 0x00
	case 'C':
		prefixBits = 0x01
	case 'B':
		prefixBits = 0x02
	case 'U':
		prefixBits = 0x03
	}
	digit1 := hexDigit(code[1])
	digit2 := hexDigit(code[2])
	digit3 := hexDigit(code[3])
	digit4 := hexDigit(code[4])

	a := (prefixBits << 6) | (digit1 << 4) | digit2
	b := (digit3 << 4) | digit4
	return []byte{a, b}
}

func hexDigit(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
