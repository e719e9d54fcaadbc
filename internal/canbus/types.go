// Package canbus ingests raw CAN frames from a SocketCAN interface into a
// bounded buffer that downstream decoders drain at their own pace.
package canbus

import (
	"time"

	"github.com/anodyne74/canedge/internal/stats"
)

// Frame is a single CAN frame captured off the bus.
type Frame struct {
	ID        uint32
	Data      []byte
	Timestamp time.Time
	Extended  bool
}

// Stats is a snapshot of buffer health, suitable for periodic logging or
// publishing on the dashboard.
type Stats struct {
	Size        int
	Capacity    int
	Enqueued    uint64
	Dropped     uint64
	Utilization float64 // Size / Capacity, in [0, 1]

	// UtilizationWindow summarizes the last utilizationWindowSize
	// samples, smoothing over single-tick spikes when deciding whether
	// the bus is sustainedly overloaded.
	UtilizationWindow stats.Summary
}
