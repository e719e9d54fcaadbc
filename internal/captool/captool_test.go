package captool

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRecorderRequiresStartBeforeRecord(t *testing.T) {
	r := NewRecorder("1HGBH41JXMN109186", "gw-1")
	if err := r.Record(0x7E8, []byte{0x41, 0x0C}, nil); err == nil {
		t.Fatal("expected Record before Start to return an error")
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	r := NewRecorder("1HGBH41JXMN109186", "gw-1")
	if err := r.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := r.Record(0x7E8, []byte{0x41, 0x0C, 0x1A, 0xF8}, map[string]any{"rpm": 1726.0}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := r.Record(0x7E8, []byte{0x41, 0x05, 0x5A}, nil); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if got := r.FrameCount(); got != 2 {
		t.Fatalf("expected 2 recorded frames, got %d", got)
	}

	path := filepath.Join(t.TempDir(), "session.json")
	if err := r.Stop(path); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	loaded, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession returned error: %v", err)
	}
	if len(loaded.Frames) != 2 {
		t.Fatalf("expected 2 frames in loaded session, got %d", len(loaded.Frames))
	}
	if loaded.VIN != "1HGBH41JXMN109186" {
		t.Errorf("expected VIN to round-trip, got %s", loaded.VIN)
	}
	if loaded.Frames[0].CANID != 0x7E8 {
		t.Errorf("expected first frame CAN ID 0x7E8, got %#x", loaded.Frames[0].CANID)
	}
}

func TestReplayerPlaysFramesInOrder(t *testing.T) {
	session := NewSession("1HGBH41JXMN109186", "gw-1")
	base := time.Now()
	session.AddFrame(Frame{Timestamp: base, CANID: 0x7E8, Data: []byte{0x01}})
	session.AddFrame(Frame{Timestamp: base.Add(5 * time.Millisecond), CANID: 0x7E9, Data: []byte{0x02}})
	session.AddFrame(Frame{Timestamp: base.Add(10 * time.Millisecond), CANID: 0x7EA, Data: []byte{0x03}})

	replayer := NewReplayer(session)
	if err := replayer.SetSpeed(100); err != nil {
		t.Fatalf("SetSpeed returned error: %v", err)
	}

	var seen []uint32
	err := replayer.Play(context.Background(), func(f Frame) {
		seen = append(seen, f.CANID)
	})
	if err != nil {
		t.Fatalf("Play returned error: %v", err)
	}
	if len(seen) != 3 || seen[0] != 0x7E8 || seen[1] != 0x7E9 || seen[2] != 0x7EA {
		t.Fatalf("expected frames replayed in capture order, got %#v", seen)
	}
	if progress := replayer.Progress(); progress < 0.9 {
		t.Errorf("expected progress near 1.0 after full replay, got %v", progress)
	}
}

func TestReplayerPlayStopsOnCancellation(t *testing.T) {
	session := NewSession("1HGBH41JXMN109186", "gw-1")
	base := time.Now()
	session.AddFrame(Frame{Timestamp: base, CANID: 0x7E8, Data: []byte{0x01}})
	session.AddFrame(Frame{Timestamp: base.Add(time.Hour), CANID: 0x7E9, Data: []byte{0x02}})

	replayer := NewReplayer(session)
	ctx, cancel := context.WithCancel(context.Background())

	var seen int
	done := make(chan error, 1)
	go func() {
		done <- replayer.Play(ctx, func(f Frame) { seen++ })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Play to return an error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after cancellation")
	}
}

func TestReplayerRejectsNonPositiveSpeed(t *testing.T) {
	replayer := NewReplayer(NewSession("1HGBH41JXMN109186", "gw-1"))
	if err := replayer.SetSpeed(0); err == nil {
		t.Error("expected SetSpeed(0) to return an error")
	}
}
