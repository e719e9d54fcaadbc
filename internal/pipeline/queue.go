package pipeline

import "sync/atomic"

// Queue is a bounded, non-blocking hand-off channel between pipeline
// stages. A stalled consumer must never block a producer: Enqueue drops
// and counts the message instead of waiting for room.
type Queue struct {
	ch       chan Message
	enqueued uint64
	dequeued uint64
	dropped  uint64
}

// NewQueue creates a Queue with the given channel capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Message, capacity)}
}

// Enqueue attempts a non-blocking send. It returns false, incrementing
// the drop counter, if the queue is full.
func (q *Queue) Enqueue(msg Message) bool {
	select {
	case q.ch <- msg:
		atomic.AddUint64(&q.enqueued, 1)
		return true
	default:
		atomic.AddUint64(&q.dropped, 1)
		return false
	}
}

// Chan exposes the underlying channel for select-based consumption.
func (q *Queue) Chan() <-chan Message {
	return q.ch
}

// Dequeued must be called by the consumer after it successfully reads
// from Chan(), to keep QueueStats accurate.
func (q *Queue) Dequeued() {
	atomic.AddUint64(&q.dequeued, 1)
}

// QueueStats is a snapshot of queue throughput and pressure.
type QueueStats struct {
	Enqueued uint64
	Dequeued uint64
	Dropped  uint64
	Depth    int
}

// Stats returns a snapshot of current counters and in-flight depth.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Enqueued: atomic.LoadUint64(&q.enqueued),
		Dequeued: atomic.LoadUint64(&q.dequeued),
		Dropped:  atomic.LoadUint64(&q.dropped),
		Depth:    len(q.ch),
	}
}
