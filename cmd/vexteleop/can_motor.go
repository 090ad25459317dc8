package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CAN motor frame layout (8 data bytes, only the first 4 used):
//
//	[0:2] int16 little endian value: hundredths of a percent (power) or rpm (velocity)
//	[2]   brake mode (0 coast, 1 brake, 2 hold)
//	[3]   flags
const (
	canFlagStop     = 1 << 0
	canFlagVelocity = 1 << 1
	canFlagBrakeSet = 1 << 2

	canFrameLength = 4

	canMaxStandardID = 0x7ff
)

// CANWriter transmits raw CAN frames.
type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// SocketCANWriter writes frames to a Linux SocketCAN interface.
type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

// NewSocketCANWriter opens iface ("can0", "vcan0", ...).
func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// canMotorBus addresses each motor by CAN ID.
type canMotorBus struct {
	w CANWriter
}

func newCANMotorBus(w CANWriter) *canMotorBus {
	return &canMotorBus{w: w}
}

func (b *canMotorBus) Send(ctx context.Context, id uint32, f MotorFrame) error {
	frame, err := encodeMotorFrame(id, f)
	if err != nil {
		return err
	}
	return b.w.WriteFrame(ctx, frame)
}

func (b *canMotorBus) Close() error { return b.w.Close() }

// encodeMotorFrame packs a MotorFrame into a standard CAN frame.
func encodeMotorFrame(id uint32, f MotorFrame) (can.Frame, error) {
	if id > canMaxStandardID {
		return can.Frame{}, fmt.Errorf("can id 0x%x exceeds standard 11-bit range", id)
	}

	var value float64
	var flags byte
	switch f.Op {
	case MotorOpPower:
		value = math.Round(f.Value * 100)
	case MotorOpVelocity:
		value = math.Round(f.Value)
		flags |= canFlagVelocity
	case MotorOpStop:
		flags |= canFlagStop
	case MotorOpBrakeMode:
		flags |= canFlagBrakeSet
	default:
		return can.Frame{}, fmt.Errorf("encode motor frame: unknown op %s", f.Op)
	}
	if math.IsNaN(value) {
		value = 0
	}
	value = clampFloat(value, math.MinInt16, math.MaxInt16)

	frame := can.Frame{ID: id, Length: canFrameLength}
	binary.LittleEndian.PutUint16(frame.Data[0:2], uint16(int16(value)))
	frame.Data[2] = byte(f.Brake)
	frame.Data[3] = flags
	return frame, nil
}

// decodeMotorFrame is the inverse of encodeMotorFrame.
func decodeMotorFrame(frame can.Frame) (uint32, MotorFrame, error) {
	if frame.Length < canFrameLength {
		return 0, MotorFrame{}, fmt.Errorf("decode motor frame: length %d < %d", frame.Length, canFrameLength)
	}
	raw := float64(int16(binary.LittleEndian.Uint16(frame.Data[0:2])))
	flags := frame.Data[3]
	f := MotorFrame{Brake: BrakeMode(frame.Data[2])}

	switch {
	case flags&canFlagStop != 0:
		f.Op = MotorOpStop
	case flags&canFlagBrakeSet != 0:
		f.Op = MotorOpBrakeMode
	case flags&canFlagVelocity != 0:
		f.Op = MotorOpVelocity
		f.Value = raw
	default:
		f.Op = MotorOpPower
		f.Value = raw / 100
	}
	return frame.ID, f, nil
}
