package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

// Hub tests run without a websocket server: viewers have a nil conn, which
// shutdown tolerates.

func newTestHub(t *testing.T, viewerQueue, frameQueue int) *TelemetryHub {
	t.Helper()
	return NewTelemetryHub(slog.Default(), HubConfig{
		ViewerQueue: viewerQueue,
		FrameQueue:  frameQueue,
	})
}

func addTestViewer(hub *TelemetryHub, name string, queue int) *viewer {
	v := &viewer{hub: hub, out: make(chan []byte, queue), addr: name}
	hub.add(v)
	return v
}

func TestHub_FrameDeliveredToAllViewers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c1 := addTestViewer(hub, "c1", 4)
	c2 := addTestViewer(hub, "c2", 4)

	if got := hub.Viewers(); got != 2 {
		t.Fatalf("expected 2 viewers, got %d", got)
	}

	msg := []byte(`{"type":"display_line","data":{"line":"spinner","text":"S: OFF rpm   500"}}`)

	hub.Publish(msg)

	for _, v := range []*viewer{c1, c2} {
		select {
		case got := <-v.out:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", v.addr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive frame", v.addr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for hub to stop")
	}

	if got := hub.Viewers(); got != 0 {
		t.Fatalf("expected all viewers dropped on shutdown, got %d", got)
	}
	if _, ok := <-c1.out; ok {
		t.Fatalf("expected c1 queue closed on shutdown")
	}
}

func TestHub_LaggingViewerDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 1, 8)
	go hub.Run(ctx)

	slow := addTestViewer(hub, "slow", 1)
	fast := addTestViewer(hub, "fast", 8)

	// A full queue stands in for a stuck connection.
	slow.out <- []byte(`"already queued"`)

	msg := []byte(`{"type":"rumble","data":{"pattern":".."}}`)
	hub.Publish(msg)

	select {
	case got := <-fast.out:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then expect the channel to be closed.
	select {
	case <-slow.out:
	default:
	}

	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.out:
			return !ok
		default:
			return false
		}
	}, "expected lagging viewer queue to be closed")
	if got := hub.Viewers(); got != 1 {
		t.Fatalf("expected 1 viewer left, got %d", got)
	}
}

func TestRunBroadcaster_CoalescesDriveCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 16, 16)
	go hub.Run(ctx)

	c := addTestViewer(hub, "c", 16)

	src := make(chan StateBroadcast, 16)
	go RunBroadcaster(ctx, hub, src, slog.Default())

	t0 := time.Unix(1000, 0).UTC()
	for i := 1; i <= 5; i++ {
		src <- BroadcastDriveCommand{Command: DriveCommand{Left: float64(i), Right: -float64(i)}, At: t0}
	}
	// A non-drive broadcast flushes the pending drive command first.
	src <- BroadcastRumble{Pattern: ".=", At: t0}

	var got []wireFrame
	waitUntil(t, time.Second, func() bool {
		for {
			select {
			case raw := <-c.out:
				var env wireFrame
				if err := json.Unmarshal(raw, &env); err != nil {
					t.Fatalf("bad frame %q: %v", raw, err)
				}
				got = append(got, env)
			default:
				return len(got) >= 2
			}
		}
	}, "expected two frames")

	if len(got) != 2 {
		t.Fatalf("expected 2 frames (coalesced drive + rumble), got %d", len(got))
	}
	if got[0].Type != "drive_command" || got[1].Type != "rumble" {
		t.Fatalf("unexpected frame order: %s, %s", got[0].Type, got[1].Type)
	}
	data, _ := json.Marshal(got[0].Data)
	var dc DriveCommand
	if err := json.Unmarshal(data, &dc); err != nil {
		t.Fatalf("decode drive payload: %v", err)
	}
	if dc.Left != 5 || dc.Right != -5 {
		t.Fatalf("expected latest drive command (5,-5), got %+v", dc)
	}
}

func TestBroadcastType(t *testing.T) {
	tests := []struct {
		in   StateBroadcast
		want string
	}{
		{BroadcastDisplayLine{Line: DisplayLineMotors, Text: "M: F C   0%   0%"}, "display_line"},
		{BroadcastDriveCommand{}, "drive_command"},
		{BroadcastRumble{Pattern: ".."}, "rumble"},
		{BroadcastAutonomous{Routine: "red_flag", Running: true}, "autonomous"},
	}
	for _, tt := range tests {
		if got := broadcastType(tt.in); got != tt.want {
			t.Errorf("broadcastType(%T) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
