package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestMotorGroup_InversionAndFanout(t *testing.T) {
	bus := newLogMotorBus(slog.Default())
	d := &Drivetrain{
		Left:  NewMotorGroup("left", bus, []uint32{1, 2}, false),
		Right: NewMotorGroup("right", bus, []uint32{3, 4}, true),
	}

	if err := d.Spin(context.Background(), DriveCommand{Left: 30, Right: 70}); err != nil {
		t.Fatalf("spin: %v", err)
	}
	want := map[uint32]float64{1: 30, 2: 30, 3: -70, 4: -70}
	for id, v := range want {
		f, ok := bus.Last(id)
		if !ok || f.Op != MotorOpPower || f.Value != v {
			t.Fatalf("motor %d = %+v, want power %v", id, f, v)
		}
	}

	if err := d.Stop(context.Background(), BrakeHold); err != nil {
		t.Fatalf("stop: %v", err)
	}
	for id := range want {
		if f, _ := bus.Last(id); f.Op != MotorOpStop || f.Brake != BrakeHold {
			t.Fatalf("motor %d = %+v, want stop hold", id, f)
		}
	}
}

type failingBus struct {
	failID uint32
	sent   []uint32
}

func (b *failingBus) Send(_ context.Context, id uint32, _ MotorFrame) error {
	b.sent = append(b.sent, id)
	if id == b.failID {
		return errors.New("no ack")
	}
	return nil
}

func (b *failingBus) Close() error { return nil }

func TestMotorGroup_ContinuesPastFailedMotor(t *testing.T) {
	bus := &failingBus{failID: 1}
	g := NewMotorGroup("left", bus, []uint32{1, 2}, false)

	err := g.SpinRPM(context.Background(), 100)
	if err == nil || !strings.Contains(err.Error(), "left motor 1 velocity") {
		t.Fatalf("expected error naming the failed motor, got %v", err)
	}
	if len(bus.sent) != 2 {
		t.Fatalf("expected both motors addressed, got %v", bus.sent)
	}
}

func TestBrakeMode(t *testing.T) {
	for _, s := range []string{"coast", "brake", "hold"} {
		m, err := ParseBrakeMode(s)
		if err != nil || m.String() != s {
			t.Fatalf("ParseBrakeMode(%q) = %v, %v", s, m, err)
		}
	}
	if _, err := ParseBrakeMode("park"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if BrakeHold.Next() != BrakeCoast {
		t.Fatalf("expected hold to wrap to coast")
	}
	if BrakeHold.Letter() != 'H' {
		t.Fatalf("unexpected letter %c", BrakeHold.Letter())
	}
}

func TestSpinnerState(t *testing.T) {
	s := SpinnerOff
	var seen []string
	for i := 0; i < 4; i++ {
		s = s.Next()
		seen = append(seen, s.Short())
	}
	if got := strings.Join(seen, " "); got != "FWD OFF REV OFF" {
		t.Fatalf("spinner cycle = %q", got)
	}
	if SpinnerOffAfterForward.Running() || !SpinnerReverse.Running() {
		t.Fatalf("unexpected Running() results")
	}
}
