package captool

import (
	"context"
	"fmt"
	"time"
)

// FrameHandler receives one replayed frame, in original capture order.
type FrameHandler func(Frame)

// Replayer feeds a Session's frames back to a handler, reproducing the
// original inter-frame timing scaled by Speed.
type Replayer struct {
	session      *Session
	speed        float64
	currentFrame int
}

// NewReplayer wraps session for replay at real-time speed.
func NewReplayer(session *Session) *Replayer {
	return &Replayer{session: session, speed: 1.0}
}

// SetSpeed scales inter-frame delay; 2.0 replays twice as fast, 0.5
// half as fast. Non-positive values are rejected.
func (r *Replayer) SetSpeed(speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("captool: replay speed must be positive, got %v", speed)
	}
	r.speed = speed
	return nil
}

// JumpTo advances the replay cursor to the first frame at or after
// timestamp.
func (r *Replayer) JumpTo(timestamp time.Time) error {
	for i, f := range r.session.Frames {
		if !f.Timestamp.Before(timestamp) {
			r.currentFrame = i
			return nil
		}
	}
	return fmt.Errorf("captool: no frame at or after %s", timestamp)
}

// Progress returns how far through the session the replay cursor is,
// from 0.0 to 1.0.
func (r *Replayer) Progress() float64 {
	if len(r.session.Frames) == 0 {
		return 0
	}
	return float64(r.currentFrame) / float64(len(r.session.Frames))
}

// Play replays frames from the current cursor to handler, honoring
// ctx cancellation between frames. It returns ctx.Err() if cancelled
// before completion.
func (r *Replayer) Play(ctx context.Context, handler FrameHandler) error {
	frames := r.session.Frames
	if len(frames) == 0 {
		return fmt.Errorf("captool: session has no frames to replay")
	}

	start := time.Now()
	sessionStart := frames[0].Timestamp

	for i := r.currentFrame; i < len(frames); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.currentFrame = i
		frame := frames[i]

		targetDelay := time.Duration(float64(frame.Timestamp.Sub(sessionStart)) / r.speed)
		actualDelay := time.Since(start)
		if actualDelay < targetDelay {
			select {
			case <-time.After(targetDelay - actualDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		handler(frame)
		r.currentFrame = i + 1
	}
	return nil
}
