package main

import (
	"context"
	"encoding/binary"
	"io"
)

// inputEvent mirrors struct input_event on 64-bit Linux:
// struct timeval time; __u16 type; __u16 code; __s32 value.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = 24

func decodeInputEvent(b []byte) inputEvent {
	le := binary.LittleEndian
	return inputEvent{
		Sec:   int64(le.Uint64(b[0:8])),
		Usec:  int64(le.Uint64(b[8:16])),
		Type:  le.Uint16(b[16:18]),
		Code:  le.Uint16(b[18:20]),
		Value: int32(le.Uint32(b[20:24])),
	}
}

// decodeInputEvents decodes every whole record in b. The kernel never splits
// a record across reads, so a remainder means a short read.
func decodeInputEvents(b []byte, fn func(inputEvent)) (rest int) {
	for len(b) >= inputEventSize {
		fn(decodeInputEvent(b[:inputEventSize]))
		b = b[inputEventSize:]
	}
	return len(b)
}

// readInputEvents streams events from r until a read fails or ctx is
// canceled. A trailing partial record is reported as io.ErrUnexpectedEOF.
// Only the first error of all readers is kept, so the send never blocks.
func readInputEvents(ctx context.Context, r io.Reader, events chan<- inputEvent, readErr chan<- error) {
	var rec [inputEventSize]byte
	for {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			if ctx.Err() == nil {
				reportReadErr(readErr, err)
			}
			return
		}
		select {
		case events <- decodeInputEvent(rec[:]):
		case <-ctx.Done():
			return
		}
	}
}

func reportReadErr(readErr chan<- error, err error) {
	select {
	case readErr <- err:
	default:
	}
}
