// Package poller dispatches periodic diagnostic requests per configured
// PID cadence.
package poller

import (
	"context"
	"fmt"
	"log"
	"time"
)

// tick bounds scheduling jitter; every enabled entry is checked for
// dispatch eligibility once per tick.
const tick = 10 * time.Millisecond

const (
	minIntervalMS = 100
	maxIntervalMS = 5000
)

// Entry is one scheduled PID poll.
type Entry struct {
	PID          byte
	Name         string
	Interval     time.Duration
	Enabled      bool
	lastDispatch time.Time
}

// RequestSink receives a dispatched poll request. Implementations
// typically publish an OBD-II or UDS request frame onto the CAN bus.
type RequestSink func(pid byte, name string)

// controlOp is a control-surface mutation, applied on the scheduler's
// own goroutine so the schedule map is never touched from another
// thread.
type controlOp func(map[byte]*Entry)

// Scheduler runs a single loop that dispatches requests for every
// enabled entry whose interval has elapsed. All mutation happens
// through queued control operations rather than direct field writes
// from other goroutines.
type Scheduler struct {
	entries map[byte]*Entry
	sink    RequestSink
	logger  *log.Logger

	ops chan controlOp
}

// NewScheduler builds a Scheduler that dispatches through sink.
func NewScheduler(sink RequestSink, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		entries: make(map[byte]*Entry),
		sink:    sink,
		logger:  logger,
		ops:     make(chan controlOp, 64),
	}
}

// Run blocks, ticking the schedule, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-s.ops:
			op(s.entries)
		case <-ticker.C:
			s.dispatchDue(time.Now())
		}
	}
}

func (s *Scheduler) dispatchDue(now time.Time) {
	for _, e := range s.entries {
		if !e.Enabled {
			continue
		}
		if now.Sub(e.lastDispatch) < e.Interval {
			continue
		}
		e.lastDispatch = now
		s.sink(e.PID, e.Name)
	}
}

// apply queues op and blocks until it has been applied on the
// scheduler's own goroutine.
func (s *Scheduler) apply(op controlOp) {
	done := make(chan struct{})
	s.ops <- func(entries map[byte]*Entry) {
		op(entries)
		close(done)
	}
	<-done
}

// Add registers a new schedule entry. The entry is queued without waiting
// for Run to apply it, so Add may be called before Run has started (up to
// the control queue's capacity of pending operations).
func (s *Scheduler) Add(pid byte, name string, intervalMS int, enabled bool) error {
	if intervalMS < minIntervalMS || intervalMS > maxIntervalMS {
		return fmt.Errorf("poller: interval %dms out of bounds [%d,%d]", intervalMS, minIntervalMS, maxIntervalMS)
	}
	s.ops <- controlOp(func(entries map[byte]*Entry) {
		entries[pid] = &Entry{
			PID:      pid,
			Name:     name,
			Interval: time.Duration(intervalMS) * time.Millisecond,
			Enabled:  enabled,
		}
	})
	return nil
}

// Remove deletes a schedule entry.
func (s *Scheduler) Remove(pid byte) {
	s.apply(func(entries map[byte]*Entry) { delete(entries, pid) })
}

// Enable turns on dispatch for pid.
func (s *Scheduler) Enable(pid byte) {
	s.apply(func(entries map[byte]*Entry) {
		if e, ok := entries[pid]; ok {
			e.Enabled = true
		}
	})
}

// Disable turns off dispatch for pid.
func (s *Scheduler) Disable(pid byte) {
	s.apply(func(entries map[byte]*Entry) {
		if e, ok := entries[pid]; ok {
			e.Enabled = false
		}
	})
}

// SetInterval changes the dispatch interval for pid, rejecting values
// outside [100, 5000] ms.
func (s *Scheduler) SetInterval(pid byte, intervalMS int) error {
	if intervalMS < minIntervalMS || intervalMS > maxIntervalMS {
		return fmt.Errorf("poller: interval %dms out of bounds [%d,%d]", intervalMS, minIntervalMS, maxIntervalMS)
	}
	var notFound bool
	s.apply(func(entries map[byte]*Entry) {
		e, ok := entries[pid]
		if !ok {
			notFound = true
			return
		}
		e.Interval = time.Duration(intervalMS) * time.Millisecond
	})
	if notFound {
		return fmt.Errorf("poller: no schedule entry for PID 0x%02X", pid)
	}
	return nil
}

// Snapshot returns a copy of the current schedule, safe to read from
// any goroutine.
func (s *Scheduler) Snapshot() []Entry {
	var out []Entry
	s.apply(func(entries map[byte]*Entry) {
		out = make([]Entry, 0, len(entries))
		for _, e := range entries {
			out = append(out, *e)
		}
	})
	return out
}
