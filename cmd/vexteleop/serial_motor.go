package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"go.bug.st/serial"
)

// serialMotorBus talks to a motor controller bridge (a robot brain running a
// small line interpreter) over a USB serial port. One line per frame:
//
//	P <id> <pct>      power, percent
//	V <id> <rpm>      velocity
//	S <id> <mode>     stop with coast|brake|hold
//	B <id> <mode>     set stopping mode
type serialMotorBus struct {
	mu  sync.Mutex
	w   io.WriteCloser
	buf []byte
}

// openSerialMotorBus opens device at baud, 8N1.
func openSerialMotorBus(device string, baud int) (*serialMotorBus, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return newSerialMotorBus(port), nil
}

func newSerialMotorBus(w io.WriteCloser) *serialMotorBus {
	return &serialMotorBus{w: w, buf: make([]byte, 0, 32)}
}

func (b *serialMotorBus) Send(ctx context.Context, id uint32, f MotorFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	line, err := appendSerialFrame(b.buf[:0], id, f)
	if err != nil {
		return err
	}
	b.buf = line
	if _, err := b.w.Write(line); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (b *serialMotorBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.w.Close()
}

func appendSerialFrame(dst []byte, id uint32, f MotorFrame) ([]byte, error) {
	switch f.Op {
	case MotorOpPower:
		dst = append(dst, 'P', ' ')
	case MotorOpVelocity:
		dst = append(dst, 'V', ' ')
	case MotorOpStop:
		dst = append(dst, 'S', ' ')
	case MotorOpBrakeMode:
		dst = append(dst, 'B', ' ')
	default:
		return dst, fmt.Errorf("encode serial frame: unknown op %s", f.Op)
	}

	dst = strconv.AppendUint(dst, uint64(id), 10)
	dst = append(dst, ' ')

	switch f.Op {
	case MotorOpPower:
		dst = strconv.AppendFloat(dst, f.Value, 'f', 2, 64)
	case MotorOpVelocity:
		dst = strconv.AppendFloat(dst, f.Value, 'f', 0, 64)
	default:
		dst = append(dst, f.Brake.String()...)
	}
	return append(dst, '\n'), nil
}
