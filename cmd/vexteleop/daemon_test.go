package main

import (
	"context"
	"log/slog"
	"slices"
	"testing"
	"time"
)

func startTestDaemon(t *testing.T, act *Actuators, broadcasts chan StateBroadcast) (chan<- Event, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 16)
	cfg := DefaultReducerConfig()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(ctx, DaemonOptions{
			Events:     events,
			Broadcasts: broadcasts,
			Actuators:  act,
			Config:     cfg,
			State:      NewDaemonState(cfg),
			UpdateHz:   200,
			Logger:     slog.Default(),
		})
	}()
	return events, cancel, done
}

func TestRunDaemon_DrivesFromStickAndStopsOnShutdown(t *testing.T) {
	act, left, right, spinner := newTestActuators()
	events, cancel, done := startTestDaemon(t, act, nil)
	defer cancel()

	waitUntil(t, time.Second, func() bool {
		return slices.Contains(left.Calls(), "brake coast")
	}, "expected initial brake mode applied")

	events <- AxisMoved{Axis: AxisRightY, Value: 127}
	waitUntil(t, time.Second, func() bool {
		return slices.Contains(left.Calls(), "spin 100") && slices.Contains(right.Calls(), "spin 100")
	}, "expected full forward on both sides")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("daemon did not stop")
	}

	l := left.Calls()
	if l[len(l)-1] != "stop coast" {
		t.Fatalf("expected drive stopped on shutdown, got %v", l)
	}
	s := spinner.Calls()
	if len(s) == 0 || s[len(s)-1] != "stop coast" {
		t.Fatalf("expected spinner stopped on shutdown, got %v", s)
	}
}

func TestRunDaemon_SnapshotAndBroadcasts(t *testing.T) {
	act, _, _, _ := newTestActuators()
	broadcasts := make(chan StateBroadcast, 256)
	events, cancel, done := startTestDaemon(t, act, broadcasts)
	defer func() {
		cancel()
		<-done
	}()

	events <- ToggleReversed{}

	reply := make(chan StateSnapshot, 1)
	events <- RequestStateSnapshot{Reply: reply}
	select {
	case snap := <-reply:
		if !snap.Reversed {
			t.Fatalf("expected reversed in snapshot, got %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for snapshot")
	}

	waitUntil(t, time.Second, func() bool {
		for {
			select {
			case b := <-broadcasts:
				if r, ok := b.(BroadcastRumble); ok && r.Pattern == ".=" {
					return true
				}
			default:
				return false
			}
		}
	}, "expected reversal rumble broadcast")
}

func TestRunDaemon_ExitsWhenEventsClosed(t *testing.T) {
	act, left, _, _ := newTestActuators()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event)
	cfg := DefaultReducerConfig()
	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(ctx, DaemonOptions{Events: events, Actuators: act, Config: cfg, State: NewDaemonState(cfg), Logger: slog.Default()})
	}()

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("daemon did not stop after events closed")
	}
	l := left.Calls()
	if len(l) == 0 || l[len(l)-1] != "stop coast" {
		t.Fatalf("expected stop on exit, got %v", l)
	}
}
