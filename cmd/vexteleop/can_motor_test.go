package main

import (
	"context"
	"testing"

	"go.einride.tech/can"
)

type fakeCANWriter struct {
	frames []can.Frame
	closed bool
}

func (w *fakeCANWriter) WriteFrame(_ context.Context, f can.Frame) error {
	w.frames = append(w.frames, f)
	return nil
}

func (w *fakeCANWriter) Close() error {
	w.closed = true
	return nil
}

func TestEncodeMotorFrame(t *testing.T) {
	tests := []struct {
		name string
		in   MotorFrame
		data [4]byte
	}{
		{"power half", MotorFrame{Op: MotorOpPower, Value: 50}, [4]byte{0x88, 0x13, 0, 0}},
		{"power negative", MotorFrame{Op: MotorOpPower, Value: -1}, [4]byte{0x9c, 0xff, 0, 0}},
		{"velocity", MotorFrame{Op: MotorOpVelocity, Value: 500}, [4]byte{0xf4, 0x01, 0, canFlagVelocity}},
		{"stop hold", MotorFrame{Op: MotorOpStop, Brake: BrakeHold}, [4]byte{0, 0, 2, canFlagStop}},
		{"brake mode", MotorFrame{Op: MotorOpBrakeMode, Brake: BrakeBrake}, [4]byte{0, 0, 1, canFlagBrakeSet}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := encodeMotorFrame(0x21, tt.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if f.ID != 0x21 || f.Length != canFrameLength {
				t.Fatalf("unexpected header id=0x%x len=%d", f.ID, f.Length)
			}
			var got [4]byte
			copy(got[:], f.Data[:4])
			if got != tt.data {
				t.Fatalf("data = % x, want % x", got, tt.data)
			}

			id, back, err := decodeMotorFrame(f)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if id != 0x21 || back != tt.in {
				t.Fatalf("decode = (0x%x, %+v), want (0x21, %+v)", id, back, tt.in)
			}
		})
	}
}

func TestEncodeMotorFrame_ClampsOutOfRange(t *testing.T) {
	f, err := encodeMotorFrame(1, MotorFrame{Op: MotorOpPower, Value: 400})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, back, _ := decodeMotorFrame(f)
	if back.Value != 327.67 {
		t.Fatalf("expected clamp to 327.67, got %v", back.Value)
	}
}

func TestEncodeMotorFrame_Errors(t *testing.T) {
	if _, err := encodeMotorFrame(canMaxStandardID+1, MotorFrame{Op: MotorOpStop}); err == nil {
		t.Fatalf("expected error for extended id")
	}
	if _, err := encodeMotorFrame(1, MotorFrame{}); err == nil {
		t.Fatalf("expected error for zero op")
	}
	if _, _, err := decodeMotorFrame(can.Frame{ID: 1, Length: 2}); err == nil {
		t.Fatalf("expected error for short frame")
	}
}

func TestCANMotorBus_SendAndClose(t *testing.T) {
	w := &fakeCANWriter{}
	bus := newCANMotorBus(w)
	group := NewMotorGroup("left", bus, []uint32{1, 2}, true)

	if err := group.Spin(context.Background(), 25); err != nil {
		t.Fatalf("spin: %v", err)
	}
	if len(w.frames) != 2 {
		t.Fatalf("expected one frame per motor, got %d", len(w.frames))
	}
	for i, f := range w.frames {
		id, mf, _ := decodeMotorFrame(f)
		if id != uint32(i+1) || mf.Op != MotorOpPower || mf.Value != -25 {
			t.Fatalf("frame %d = (%d, %+v), want inverted power -25", i, id, mf)
		}
	}

	if err := bus.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}
