package canbus

import (
	"log"
	"sync"
	"time"

	"github.com/anodyne74/canedge/internal/stats"
)

// utilizationWindowSize bounds how many Push samples feed the rolling
// utilization summary.
const utilizationWindowSize = 120

// defaultUtilizationWarnThreshold is the fraction full at which Buffer
// starts logging warnings when NewBuffer isn't given an explicit one.
const defaultUtilizationWarnThreshold = 0.8

// warnThrottle is the minimum interval between repeated utilization
// warnings, so a sustained overload doesn't flood the log.
const warnThrottle = 60 * time.Second

// Buffer is a fixed-capacity FIFO of Frames. When full, Push discards
// the oldest held frame to make room for the incoming one, so the
// buffer always reflects the most recent traffic even under sustained
// overload.
type Buffer struct {
	mu       sync.Mutex
	frames   []Frame
	capacity int

	enqueued uint64
	dropped  uint64

	logger        *log.Logger
	lastWarning   time.Time
	utilization   *stats.Window
	warnThreshold float64
}

// NewBuffer creates a Buffer with room for capacity frames. warnThreshold
// is the fraction full at which Push starts logging utilization warnings;
// a zero value falls back to defaultUtilizationWarnThreshold.
func NewBuffer(capacity int, warnThreshold float64, logger *log.Logger) *Buffer {
	if logger == nil {
		logger = log.Default()
	}
	if warnThreshold == 0 {
		warnThreshold = defaultUtilizationWarnThreshold
	}
	return &Buffer{
		frames:        make([]Frame, 0, capacity),
		capacity:      capacity,
		logger:        logger,
		utilization:   stats.NewWindow(utilizationWindowSize),
		warnThreshold: warnThreshold,
	}
}

// Push appends a frame, evicting the oldest held frame first if the
// buffer is already at capacity. Returns false when an eviction
// occurred, true otherwise. received always increments; dropped only
// increments on eviction.
func (b *Buffer) Push(f Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.enqueued++

	evicted := false
	if len(b.frames) >= b.capacity {
		b.frames = b.frames[1:]
		b.dropped++
		evicted = true
	}

	b.frames = append(b.frames, f)
	b.recordUtilizationLocked()
	b.maybeWarn()
	return !evicted
}

// Drain removes and returns every frame currently held, oldest first,
// leaving the buffer empty.
func (b *Buffer) Drain() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.frames
	b.frames = make([]Frame, 0, b.capacity)
	return out
}

func (b *Buffer) recordUtilizationLocked() {
	if b.capacity == 0 {
		return
	}
	b.utilization.Add(float64(len(b.frames)) / float64(b.capacity))
}

// Pop removes and returns the oldest frame, if any.
func (b *Buffer) Pop() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return Frame{}, false
	}
	f := b.frames[0]
	b.frames = b.frames[1:]
	return f, true
}

// Stats returns a snapshot of current buffer health.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statsLocked()
}

func (b *Buffer) statsLocked() Stats {
	size := len(b.frames)
	util := 0.0
	if b.capacity > 0 {
		util = float64(size) / float64(b.capacity)
	}
	return Stats{
		Size:              size,
		Capacity:          b.capacity,
		Enqueued:          b.enqueued,
		Dropped:           b.dropped,
		Utilization:       util,
		UtilizationWindow: b.utilization.Summary(),
	}
}

// maybeWarn logs a utilization warning at most once per warnThrottle
// interval while utilization is at or above warnThreshold.
func (b *Buffer) maybeWarn() {
	stats := b.statsLocked()
	if stats.Utilization < b.warnThreshold {
		return
	}
	now := time.Now()
	if now.Sub(b.lastWarning) < warnThrottle {
		return
	}
	b.lastWarning = now
	b.logger.Printf("ingest buffer at %.0f%% utilization (%d/%d), %d frames dropped total",
		stats.Utilization*100, stats.Size, stats.Capacity, stats.Dropped)
}
